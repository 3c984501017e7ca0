package analysis

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

var commandContext = exec.CommandContext

// Meter measures the loudness of one audio file.
type Meter interface {
	Measure(ctx context.Context, path string) (Measurement, error)
}

// Option configures the CLI meter.
type Option func(*CLI)

// WithBinary overrides the default ffmpeg binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// WithTruePeak toggles true-peak measurement. Disabling it speeds up
// analysis at the cost of less accurate clipping prevention.
func WithTruePeak(enabled bool) Option {
	return func(c *CLI) {
		c.truePeak = enabled
	}
}

// CLI measures loudness by running ffmpeg's ebur128 filter as a
// subprocess and parsing the summary it writes to stderr.
type CLI struct {
	binary   string
	truePeak bool
}

// NewCLI constructs a CLI meter using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg", truePeak: true}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Measure decodes the file and returns its loudness measurement.
// The audio payload is never modified; ffmpeg renders into the null muxer.
func (c *CLI) Measure(ctx context.Context, path string) (Measurement, error) {
	if strings.TrimSpace(path) == "" {
		return Measurement{}, errors.New("input path required")
	}

	filter := "ebur128=framelog=quiet"
	if c.truePeak {
		filter = "ebur128=peak=true:framelog=quiet"
	}
	args := []string{
		"-hide_banner", "-nostats", "-nostdin",
		"-i", path,
		"-map", "0:a:0",
		"-filter:a", filter,
		"-f", "null", "-",
	}

	cmd := commandContext(ctx, c.binary, args...) //nolint:gosec
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Measurement{}, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return Measurement{}, &SpawnError{Binary: c.binary, Err: err}
	}

	var parser SummaryParser
	tail := newLineTail(20)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		line := scanner.Text()
		parser.Feed(line)
		tail.add(line)
	}
	scanErr := scanner.Err()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Measurement{}, fmt.Errorf("analysis aborted: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Measurement{}, &ExitError{ExitCode: exitErr.ExitCode(), Stderr: tail.String()}
		}
		return Measurement{}, fmt.Errorf("wait for %s: %w", c.binary, err)
	}
	if scanErr != nil {
		return Measurement{}, fmt.Errorf("read analysis output: %w", scanErr)
	}

	return parser.Result()
}

var _ Meter = (*CLI)(nil)

// lineTail keeps the last n non-empty lines for error reporting.
type lineTail struct {
	lines []string
	limit int
}

func newLineTail(limit int) *lineTail {
	return &lineTail{limit: limit}
}

func (t *lineTail) add(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	t.lines = append(t.lines, trimmed)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}
