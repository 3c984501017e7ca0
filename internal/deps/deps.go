// Package deps reports the availability of the external binaries gaintag
// shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"gaintag/internal/config"
)

// Requirement defines an external dependency gaintag relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements returns the external binaries required for the configured tools.
func Requirements(cfg *config.Config) []Requirement {
	ffmpeg := defaultFFmpeg
	ffprobe := defaultFFprobe
	if cfg != nil {
		if cfg.Tools.FFmpeg != "" {
			ffmpeg = cfg.Tools.FFmpeg
		}
		if cfg.Tools.FFprobe != "" {
			ffprobe = cfg.Tools.FFprobe
		}
	}
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Decodes audio and runs the EBU R128 loudness filter",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Inspects container format, duration, and streams",
		},
	}
}

const (
	defaultFFmpeg  = "ffmpeg"
	defaultFFprobe = "ffprobe"
)

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the subset of statuses that are required but unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
