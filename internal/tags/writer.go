package tags

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupportedFormat reports that no writer is registered for the
// detected container format. Callers treat it as "measured but not
// tagged", not as a batch failure.
var ErrUnsupportedFormat = errors.New("unsupported tag format")

// WriteError reports a failed tag write (read-only filesystem, corrupt
// container). It is per-file and never aborts the batch.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write tags to %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Option configures the Writer.
type Option func(*Writer)

// WithFFmpeg overrides the ffmpeg binary used by remux-based writers.
func WithFFmpeg(binary string) Option {
	return func(w *Writer) {
		if binary != "" {
			w.ffmpeg = binary
		}
	}
}

// Writer persists GainTags into files, selecting the encoding that
// matches the container format.
type Writer struct {
	ffmpeg string
}

// NewWriter constructs a Writer using defaults.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{ffmpeg: "ffmpeg"}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write stores the gain tags in the file at path. The audio payload is
// never re-encoded: ID3 and FLAC writers rewrite only the tag blocks,
// and the remux writers copy every stream verbatim.
func (w *Writer) Write(ctx context.Context, path string, format Format, gt GainTags) error {
	switch format {
	case FormatMP3:
		return wrapWriteErr(path, writeID3(path, gt))
	case FormatFLAC:
		return wrapWriteErr(path, writeFLAC(path, gt))
	case FormatVorbis, FormatOpus, FormatM4A:
		return wrapWriteErr(path, w.remux(ctx, path, gt))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func wrapWriteErr(path string, err error) error {
	if err == nil {
		return nil
	}
	return &WriteError{Path: path, Err: err}
}
