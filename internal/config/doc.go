// Package config loads, normalizes, and validates gaintag's TOML
// configuration file.
package config
