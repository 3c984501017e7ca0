package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable before any work starts.
func (c *Config) Validate() error {
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateTags(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.ReferenceLoudness > 0 || c.Analysis.ReferenceLoudness < -70 {
		return fmt.Errorf("analysis.reference_loudness must be between -70 and 0 LUFS, got %g", c.Analysis.ReferenceLoudness)
	}
	if c.Analysis.MaxGain <= 0 {
		return errors.New("analysis.max_gain must be positive")
	}
	if c.Analysis.PeakCeiling > 0 {
		return fmt.Errorf("analysis.peak_ceiling must not exceed 0 dBFS, got %g", c.Analysis.PeakCeiling)
	}
	if c.Analysis.Parallelism < 0 {
		return errors.New("analysis.parallelism must not be negative")
	}
	if c.Analysis.FileTimeoutSeconds <= 0 {
		return errors.New("analysis.file_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTags() error {
	switch c.Tags.Mode {
	case TagModeTrack, TagModeAlbum:
		return nil
	default:
		return fmt.Errorf("tags.mode must be %q or %q, got %q", TagModeTrack, TagModeAlbum, c.Tags.Mode)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}
