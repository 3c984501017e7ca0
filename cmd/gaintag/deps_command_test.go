package main

import (
	"path/filepath"
	"testing"

	"gaintag/internal/testsupport"
)

func TestDepsReportsStubbedBinaries(t *testing.T) {
	dir := t.TempDir()
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", "exit 0\n")
	ffprobe := testsupport.WriteScript(t, dir, "ffprobe", "exit 0\n")

	target := filepath.Join(dir, "config.toml")
	writeFile(t, target, "[tools]\nffmpeg = \""+ffmpeg+"\"\nffprobe = \""+ffprobe+"\"\n")

	out, err := runCLI(t, "--config", target, "deps")
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "ok")
}

func TestDepsFailsWhenMissing(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, target, "[tools]\nffmpeg = \"/nonexistent/ffmpeg\"\nffprobe = \"/nonexistent/ffprobe\"\n")

	out, err := runCLI(t, "--config", target, "deps")
	if err == nil {
		t.Fatalf("expected missing binaries error, output:\n%s", out)
	}
	requireContains(t, out, "missing")
}
