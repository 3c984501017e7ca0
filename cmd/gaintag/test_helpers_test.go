package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gaintag/internal/testsupport"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

// writeScanConfig writes a config file whose tools point at stub scripts
// that emit canned ffprobe JSON and an ebur128 summary.
func writeScanConfig(t *testing.T, integrated float64) string {
	t.Helper()

	dir := t.TempDir()
	probeJSON := `{"streams":[{"index":0,"codec_name":"flac","codec_type":"audio","sample_rate":"44100","channels":2}],` +
		`"format":{"filename":"in","nb_streams":1,"duration":"180.0","format_name":"flac"}}`
	ffprobe := testsupport.WriteScript(t, dir, "ffprobe", fmt.Sprintf("cat <<'JSON'\n%s\nJSON\n", probeJSON))

	summary := fmt.Sprintf(`[Parsed_ebur128_0 @ 0x5f] Summary:

  Integrated loudness:
    I:         %.1f LUFS
    Threshold: -22.0 LUFS

  Loudness range:
    LRA:        4.0 LU

  Sample peak:
    Peak:       -1.5 dBFS

  True peak:
    Peak:       -1.0 dBFS
`, integrated)
	ffmpeg := testsupport.WriteScript(t, dir, "ffmpeg", fmt.Sprintf("cat >&2 <<'SUMMARY'\n%s\nSUMMARY\nexit 0\n", summary))

	content := fmt.Sprintf(`[analysis]
parallelism = 1

[tools]
ffmpeg = %q
ffprobe = %q

[logging]
level = "error"
`, ffmpeg, ffprobe)

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
