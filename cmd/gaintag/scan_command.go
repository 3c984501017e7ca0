package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"gaintag/internal/analysis"
	"gaintag/internal/batch"
	"gaintag/internal/config"
	"gaintag/internal/deps"
	"gaintag/internal/fileutil"
	"gaintag/internal/gain"
	"gaintag/internal/logging"
	"gaintag/internal/media/ffprobe"
	"gaintag/internal/report"
	"gaintag/internal/scancache"
	"gaintag/internal/tags"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun      bool
		mode        string
		parallelism int
		noCache     bool
		noTruePeak  bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Analyze loudness and write ReplayGain tags",
		Long: "Scan walks the given files and directories, measures each audio file\n" +
			"with ffmpeg's EBU R128 filter, and writes ReplayGain 2.0 tags. Files\n" +
			"sharing a parent directory are treated as one album.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			if mode == "" {
				mode = cfg.Tags.Mode
			}
			switch mode {
			case config.TagModeTrack, config.TagModeAlbum:
			default:
				return fmt.Errorf("invalid mode %q (expected %q or %q)", mode, config.TagModeTrack, config.TagModeAlbum)
			}

			if missing := deps.Missing(deps.CheckBinaries(deps.Requirements(cfg))); len(missing) > 0 {
				names := make([]string, 0, len(missing))
				for _, status := range missing {
					names = append(names, status.Command)
				}
				return fmt.Errorf("missing required binaries: %s (run `gaintag deps`)", strings.Join(names, ", "))
			}

			entries, err := fileutil.Discover(args)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audio files found.")
				return nil
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			runner, cleanup, err := buildRunner(cfg, logger, scanOptions{
				dryRun:      dryRun,
				mode:        batch.TagMode(mode),
				parallelism: parallelism,
				noCache:     noCache,
				noTruePeak:  noTruePeak,
				quiet:       quiet,
				total:       len(entries),
			})
			if err != nil {
				return err
			}
			defer cleanup()

			files := make([]batch.FileSpec, 0, len(entries))
			for _, entry := range entries {
				files = append(files, batch.FileSpec{Path: entry.Path, AlbumKey: entry.AlbumKey})
			}

			rep, runErr := runner.Run(signalCtx, files)
			if !quiet && progressToTerminal() {
				fmt.Fprintln(os.Stderr)
			}

			// Completed work is reported even when the run was interrupted.
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTrackTable(rep))
			if len(rep.Albums) > 0 && mode == config.TagModeAlbum {
				fmt.Fprintln(out, renderAlbumTable(rep))
			}
			fmt.Fprintln(out, summarize(rep))

			if runErr != nil {
				return runErr
			}
			if rep.HasFailures() {
				counts := rep.Counts()
				return fmt.Errorf("%d of %d tracks failed", counts.Failed, counts.Total())
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute gains without writing tags")
	cmd.Flags().StringVar(&mode, "mode", "", "Tag mode: track or album (default from config)")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent analysis processes (0 = config, then CPU count)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Bypass the measurement cache for this run")
	cmd.Flags().BoolVar(&noTruePeak, "no-true-peak", false, "Skip true-peak measurement (faster, sample peak only)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

type scanOptions struct {
	dryRun      bool
	mode        batch.TagMode
	parallelism int
	noCache     bool
	noTruePeak  bool
	quiet       bool
	total       int
}

// buildRunner assembles the batch runner from configuration. The
// returned cleanup releases the cache lock when one was taken.
func buildRunner(cfg *config.Config, logger *slog.Logger, opts scanOptions) (*batch.Runner, func(), error) {
	meter := analysis.NewCLI(
		analysis.WithBinary(cfg.Tools.FFmpeg),
		analysis.WithTruePeak(cfg.Analysis.TruePeak && !opts.noTruePeak),
	)
	prober := batch.ProberFunc(func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Inspect(ctx, cfg.Tools.FFprobe, path)
	})
	writer := tags.NewWriter(tags.WithFFmpeg(cfg.Tools.FFmpeg))

	runID := uuid.NewString()
	scanLogger := logging.WithComponent(logger, "scan").With(logging.String(logging.FieldRunID, runID))

	cleanup := func() {}
	options := []batch.Option{
		batch.WithProber(prober),
		batch.WithTagWriter(writer),
		batch.WithGainConfig(gain.Config{
			ReferenceLoudness: cfg.Analysis.ReferenceLoudness,
			MaxGain:           cfg.Analysis.MaxGain,
			PeakCeiling:       cfg.Analysis.PeakCeiling,
		}),
		batch.WithTagMode(opts.mode),
		batch.WithDryRun(opts.dryRun),
		batch.WithFileTimeout(time.Duration(cfg.Analysis.FileTimeoutSeconds) * time.Second),
		batch.WithRunID(runID),
		batch.WithLogger(scanLogger),
	}

	parallelism := opts.parallelism
	if parallelism == 0 {
		parallelism = cfg.Analysis.Parallelism
	}
	options = append(options, batch.WithParallelism(parallelism))

	if cfg.Cache.Enabled && !opts.noCache {
		store, err := scancache.Open(cfg.Cache.Dir)
		if err != nil {
			if errors.Is(err, scancache.ErrLocked) {
				return nil, nil, fmt.Errorf("measurement cache at %s is in use by another gaintag process", cfg.Cache.Dir)
			}
			return nil, nil, fmt.Errorf("open measurement cache: %w", err)
		}
		cleanup = func() { _ = store.Close() }
		options = append(options, batch.WithCache(store))
	}

	if !opts.quiet && progressToTerminal() {
		options = append(options, batch.WithProgress(newProgressPrinter(opts.total)))
	}

	return batch.New(meter, options...), cleanup, nil
}

// progressToTerminal reports whether stderr is an interactive terminal.
func progressToTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// newProgressPrinter renders a single-line counter on stderr.
func newProgressPrinter(total int) report.ProgressFunc {
	var mu sync.Mutex
	done := 0
	failed := 0
	return func(event report.ProgressEvent) {
		if event.Stage != report.StageAnalyze {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		if event.Err != nil {
			failed++
		}
		if failed > 0 {
			fmt.Fprintf(os.Stderr, "\rAnalyzed %d/%d (%d failed)", done, total, failed)
			return
		}
		fmt.Fprintf(os.Stderr, "\rAnalyzed %d/%d", done, total)
	}
}
