package analysis

import "fmt"

// SpawnError indicates the analysis process could not be started at all
// (missing binary, permission denied).
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError indicates the analysis process terminated non-zero. Stderr
// holds the captured tail of the process error output.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("analysis process exited with code %d", e.ExitCode)
	}
	return fmt.Sprintf("analysis process exited with code %d: %s", e.ExitCode, e.Stderr)
}

// ParseError indicates the telemetry stream ended without the fields a
// Measurement requires.
type ParseError struct {
	Missing string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("loudness summary incomplete: missing %s", e.Missing)
}
