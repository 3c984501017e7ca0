// Package logging wires log/slog with gaintag's console and JSON handlers
// and the structured field keys shared across packages.
package logging
