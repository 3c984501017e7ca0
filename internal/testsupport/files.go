package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteAudioFile creates a placeholder audio file at path, making parent
// directories as needed. The content is inert; tests pair these files
// with stub binaries or fake meters, never with real decoders.
func WriteAudioFile(t testing.TB, path string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("audio\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// WriteScript writes an executable shell script and returns its path.
// Useful for standing in for ffmpeg or ffprobe with canned output.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script %s: %v", name, err)
	}
	return path
}
