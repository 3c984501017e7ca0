package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.normalize(); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("expected missing config file")
	}
	if cfg.Analysis.ReferenceLoudness != defaultReferenceLoudness {
		t.Fatalf("expected default reference loudness, got %g", cfg.Analysis.ReferenceLoudness)
	}
	if cfg.Tags.Mode != TagModeAlbum {
		t.Fatalf("expected default tag mode, got %q", cfg.Tags.Mode)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[analysis]
reference_loudness = -23.0
parallelism = 2

[tags]
mode = "track"

[tools]
ffmpeg = "/opt/ffmpeg/bin/ffmpeg"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if resolved != path {
		t.Fatalf("resolved path mismatch: %s", resolved)
	}
	if cfg.Analysis.ReferenceLoudness != -23.0 {
		t.Fatalf("reference loudness not applied: %g", cfg.Analysis.ReferenceLoudness)
	}
	if cfg.Analysis.Parallelism != 2 {
		t.Fatalf("parallelism not applied: %d", cfg.Analysis.Parallelism)
	}
	if cfg.Tags.Mode != TagModeTrack {
		t.Fatalf("tag mode not applied: %q", cfg.Tags.Mode)
	}
	if cfg.Tools.FFmpeg != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg binary not applied: %q", cfg.Tools.FFmpeg)
	}
	// Unset sections keep defaults.
	if cfg.Tools.FFprobe != defaultFFprobeBinary {
		t.Fatalf("ffprobe default lost: %q", cfg.Tools.FFprobe)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"positive reference", func(c *Config) { c.Analysis.ReferenceLoudness = 3 }, "reference_loudness"},
		{"zero max gain", func(c *Config) { c.Analysis.MaxGain = 0 }, "max_gain"},
		{"ceiling above zero", func(c *Config) { c.Analysis.PeakCeiling = 1 }, "peak_ceiling"},
		{"negative parallelism", func(c *Config) { c.Analysis.Parallelism = -1 }, "parallelism"},
		{"zero timeout", func(c *Config) { c.Analysis.FileTimeoutSeconds = 0 }, "file_timeout_seconds"},
		{"bad tag mode", func(c *Config) { c.Tags.Mode = "both" }, "tags.mode"},
		{"bad log format", func(c *Config) { c.Logging.Format = "yaml" }, "logging.format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteSample(path); err != nil {
		t.Fatal(err)
	}
	if err := WriteSample(path); err == nil {
		t.Fatal("expected overwrite refusal")
	}

	cfg, _, exists, err := Load(path)
	if err != nil {
		t.Fatalf("sample config should load cleanly: %v", err)
	}
	if !exists {
		t.Fatal("sample config missing after write")
	}
	if cfg.Analysis.ReferenceLoudness != defaultReferenceLoudness {
		t.Fatalf("sample config changed defaults: %g", cfg.Analysis.ReferenceLoudness)
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/music")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "music") {
		t.Fatalf("expand mismatch: %s", got)
	}
}
