package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "streams": [
    {"index": 0, "codec_name": "flac", "codec_type": "audio", "duration": "183.400000", "sample_rate": "44100", "channels": 2}
  ],
  "format": {"filename": "a.flac", "nb_streams": 1, "duration": "183.432000", "format_name": "flac"}
}`

func TestResultAccessors(t *testing.T) {
	var result Result
	if err := json.Unmarshal([]byte(sampleJSON), &result); err != nil {
		t.Fatal(err)
	}

	if got := result.DurationSeconds(); got != 183.432 {
		t.Fatalf("duration: got %g", got)
	}
	if got := result.SampleRate(); got != 44100 {
		t.Fatalf("sample rate: got %d", got)
	}
	if got := result.Channels(); got != 2 {
		t.Fatalf("channels: got %d", got)
	}
	if got := result.FormatName(); got != "flac" {
		t.Fatalf("format name: got %q", got)
	}
	if got := result.AudioStreamCount(); got != 1 {
		t.Fatalf("audio streams: got %d", got)
	}
}

func TestDurationFallsBackToStream(t *testing.T) {
	result := Result{
		Streams: []Stream{{CodecType: "audio", Duration: "12.5"}},
	}
	if got := result.DurationSeconds(); got != 12.5 {
		t.Fatalf("expected stream duration fallback, got %g", got)
	}
}

func TestInspectRunsBinary(t *testing.T) {
	binDir := t.TempDir()
	script := fmt.Sprintf("#!/bin/sh\ncat <<'EOF'\n%s\nEOF\n", sampleJSON)
	binary := filepath.Join(binDir, "ffprobe-stub")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	result, err := Inspect(context.Background(), binary, "whatever.flac")
	if err != nil {
		t.Fatal(err)
	}
	if result.FormatName() != "flac" {
		t.Fatalf("unexpected format: %q", result.FormatName())
	}
}

func TestInspectEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "ffprobe", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInspectFailureIncludesOutput(t *testing.T) {
	binDir := t.TempDir()
	binary := filepath.Join(binDir, "ffprobe-fail")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\necho 'boom' >&2\nexit 1\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, err := Inspect(context.Background(), binary, "x.mp3")
	if err == nil {
		t.Fatal("expected error")
	}
}
