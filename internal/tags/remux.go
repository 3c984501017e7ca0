package tags

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// remux rewrites the container with fresh metadata while copying every
// stream verbatim. Used for formats whose tags live in the container and
// have no dedicated Go writer (Ogg Vorbis, Opus, M4A).
func (w *Writer) remux(ctx context.Context, path string, gt GainTags) error {
	tmpPath := path + ".gaintag-tmp" + filepath.Ext(path)

	args := []string{
		"-y", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", "0",
		"-c", "copy",
		"-map_metadata", "0",
	}
	for _, pair := range gt.pairs() {
		args = append(args, "-metadata", pair.key+"="+pair.value)
	}
	args = append(args, tmpPath)

	cmd := exec.CommandContext(ctx, w.ffmpeg, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("ffmpeg metadata remux: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	if err := os.Remove(path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("remove original: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
