package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"gaintag/internal/analysis"
	"gaintag/internal/gain"
	"gaintag/internal/logging"
	"gaintag/internal/media/ffprobe"
	"gaintag/internal/report"
	"gaintag/internal/scancache"
	"gaintag/internal/tags"
)

// TagMode selects which gains a run writes.
type TagMode string

const (
	// TagModeTrack writes track gain only, as each file completes.
	TagModeTrack TagMode = "track"
	// TagModeAlbum defers writing until the album gain is known and
	// writes track and album gain together.
	TagModeAlbum TagMode = "album"
)

// FileSpec names one input file and the album it belongs to.
type FileSpec struct {
	Path     string
	AlbumKey string
}

// Prober inspects a media container before analysis.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, path string) (ffprobe.Result, error)

// Inspect calls the wrapped function.
func (f ProberFunc) Inspect(ctx context.Context, path string) (ffprobe.Result, error) {
	return f(ctx, path)
}

// TagWriter persists gain tags into a file.
type TagWriter interface {
	Write(ctx context.Context, path string, format tags.Format, gt tags.GainTags) error
}

// Cache stores measurements keyed by path plus file identity.
type Cache interface {
	Get(ctx context.Context, path string, size, mtimeNS int64) (scancache.Entry, bool, error)
	Put(ctx context.Context, path string, size, mtimeNS int64, entry scancache.Entry) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithProber overrides the container prober.
func WithProber(prober Prober) Option {
	return func(r *Runner) {
		if prober != nil {
			r.prober = prober
		}
	}
}

// WithTagWriter overrides the tag writer.
func WithTagWriter(writer TagWriter) Option {
	return func(r *Runner) {
		if writer != nil {
			r.writer = writer
		}
	}
}

// WithCache enables the measurement cache. A nil cache leaves caching off.
func WithCache(cache Cache) Option {
	return func(r *Runner) { r.cache = cache }
}

// WithGainConfig sets the gain calculation parameters.
func WithGainConfig(cfg gain.Config) Option {
	return func(r *Runner) { r.gainCfg = cfg }
}

// WithTagMode selects track-only or album tagging.
func WithTagMode(mode TagMode) Option {
	return func(r *Runner) {
		if mode != "" {
			r.mode = mode
		}
	}
}

// WithDryRun computes gains without writing any tags.
func WithDryRun(dryRun bool) Option {
	return func(r *Runner) { r.dryRun = dryRun }
}

// WithFileTimeout bounds the probe plus analysis time for one file.
// Zero disables the per-file deadline.
func WithFileTimeout(timeout time.Duration) Option {
	return func(r *Runner) { r.fileTimeout = timeout }
}

// WithParallelism bounds concurrent analysis jobs. Values below one
// select the CPU count.
func WithParallelism(parallelism int) Option {
	return func(r *Runner) { r.parallelism = parallelism }
}

// WithProgress registers a callback invoked once per completed job.
func WithProgress(progress report.ProgressFunc) Option {
	return func(r *Runner) { r.progress = progress }
}

// WithRunID tags the final report with an identifier.
func WithRunID(runID string) Option {
	return func(r *Runner) { r.runID = runID }
}

// WithLogger sets the logger for worker diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner executes batches. Construct with New; a Runner is safe for a
// single Run call at a time.
type Runner struct {
	meter  analysis.Meter
	prober Prober
	writer TagWriter
	cache  Cache

	gainCfg     gain.Config
	mode        TagMode
	dryRun      bool
	fileTimeout time.Duration
	parallelism int
	progress    report.ProgressFunc
	runID       string
	logger      *slog.Logger
}

// New constructs a Runner around a loudness meter.
func New(meter analysis.Meter, opts ...Option) *Runner {
	r := &Runner{
		meter:  meter,
		prober: ProberFunc(func(ctx context.Context, path string) (ffprobe.Result, error) {
			return ffprobe.Inspect(ctx, "ffprobe", path)
		}),
		writer:  tags.NewWriter(),
		gainCfg: gain.Config{ReferenceLoudness: -18, MaxGain: 24, PeakCeiling: 0},
		mode:    TagModeAlbum,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.parallelism < 1 {
		r.parallelism = runtime.NumCPU()
	}
	return r
}

// trackResult carries one file's resolution to the album barrier.
type trackResult struct {
	spec    FileSpec
	outcome report.TrackOutcome

	measured    bool
	measurement analysis.Measurement
	duration    float64
	format      tags.Format
}

// albumState is the completion barrier for one album grouping.
type albumState struct {
	mu       sync.Mutex
	expected int
	results  []trackResult
}

// add records a resolved track and reports whether it was the last one.
func (s *albumState) add(result trackResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return len(s.results) == s.expected
}

// Run processes every file and returns the aggregated report. Job
// failures are recorded in the report, not returned; the error is
// non-nil only when the batch itself could not run to completion.
func (r *Runner) Run(ctx context.Context, files []FileSpec) (*report.Report, error) {
	agg := report.NewAggregator(r.runID)
	if len(files) == 0 {
		return agg.Finalize(), nil
	}

	albums := make(map[string]*albumState)
	for _, file := range files {
		state, ok := albums[file.AlbumKey]
		if !ok {
			state = &albumState{}
			albums[file.AlbumKey] = state
		}
		state.expected++
	}

	var finalizers sync.WaitGroup
	group := &errgroup.Group{}
	group.SetLimit(r.parallelism)

	for _, file := range files {
		spec := file
		state := albums[spec.AlbumKey]
		group.Go(func() error {
			result := r.analyzeOne(ctx, spec)
			r.emit(report.ProgressEvent{
				Stage: report.StageAnalyze,
				Path:  spec.Path,
				Album: spec.AlbumKey,
				Err:   resultError(result),
			})
			if state.add(result) {
				finalizers.Add(1)
				go func() {
					defer finalizers.Done()
					r.finalizeAlbum(ctx, spec.AlbumKey, state, agg)
				}()
			}
			return nil
		})
	}

	_ = group.Wait()
	finalizers.Wait()

	return agg.Finalize(), ctx.Err()
}

// analyzeOne probes and measures a single file. The returned result is
// terminal for track mode; album mode revisits it during finalization.
func (r *Runner) analyzeOne(parent context.Context, spec FileSpec) trackResult {
	result := trackResult{
		spec: spec,
		outcome: report.TrackOutcome{
			Path:  spec.Path,
			Album: spec.AlbumKey,
		},
	}

	if err := parent.Err(); err != nil {
		result.outcome.Status = report.StatusSkipped
		result.outcome.ErrorKind = report.KindCanceled
		result.outcome.Error = err.Error()
		return result
	}

	ctx := parent
	if r.fileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, r.fileTimeout)
		defer cancel()
	}

	probe, err := r.prober.Inspect(ctx, spec.Path)
	if err != nil {
		r.fail(&result.outcome, report.KindProbe, err)
		return result
	}
	stream, ok := probe.FirstAudioStream()
	if !ok {
		r.fail(&result.outcome, report.KindProbe, errors.New("no audio stream"))
		return result
	}
	if n := probe.AudioStreamCount(); n > 1 {
		r.logger.Warn("multiple audio streams, analyzing the first",
			logging.String(logging.FieldPath, spec.Path),
			logging.Int("streams", n))
	}

	result.format = tags.Detect(probe.FormatName(), stream.CodecName, spec.Path)
	result.duration = probe.DurationSeconds()

	measurement, cacheHit, err := r.measure(ctx, spec.Path, probe, stream)
	if err != nil {
		r.fail(&result.outcome, classifyAnalysis(err), err)
		return result
	}
	result.measured = true
	result.measurement = measurement
	result.outcome.CacheHit = cacheHit

	trackGain := r.gainCfg.Track(measurement)
	result.outcome.TrackGain = trackGain.Gain
	result.outcome.HasTrackGain = true
	result.outcome.ClipAdjusted = trackGain.ClipAdjusted
	result.outcome.ClipCheckSkipped = trackGain.ClipCheckSkipped
	result.outcome.Silence = trackGain.Silence

	if r.mode == TagModeTrack {
		r.writeTrack(parent, &result, trackGain)
	} else {
		// Album mode defers writing to the album barrier.
		result.outcome.Status = report.StatusMeasured
	}
	return result
}

// measure returns the loudness measurement for a file, consulting the
// cache when one is configured. Cache errors degrade to a fresh
// measurement rather than failing the file.
func (r *Runner) measure(ctx context.Context, path string, probe ffprobe.Result, stream ffprobe.Stream) (analysis.Measurement, bool, error) {
	var size, mtimeNS int64
	identified := false
	if r.cache != nil {
		if info, err := os.Stat(path); err == nil {
			size = info.Size()
			mtimeNS = info.ModTime().UnixNano()
			identified = true
			entry, hit, err := r.cache.Get(ctx, path, size, mtimeNS)
			if err != nil {
				r.logger.Warn("cache read failed",
					logging.String(logging.FieldPath, path),
					logging.Error(err))
			} else if hit {
				return entry.Measurement, true, nil
			}
		}
	}

	measurement, err := r.meter.Measure(ctx, path)
	if err != nil {
		return analysis.Measurement{}, false, err
	}

	if r.cache != nil && identified {
		entry := scancache.Entry{
			Measurement: measurement,
			Duration:    probe.DurationSeconds(),
			FormatName:  probe.FormatName(),
			CodecName:   stream.CodecName,
		}
		if err := r.cache.Put(ctx, path, size, mtimeNS, entry); err != nil {
			r.logger.Warn("cache write failed",
				logging.String(logging.FieldPath, path),
				logging.Error(err))
		}
	}
	return measurement, false, nil
}

// writeTrack finishes a track-mode job by writing track gain tags.
func (r *Runner) writeTrack(ctx context.Context, result *trackResult, trackGain gain.Result) {
	gt := tags.GainTags{
		TrackGain:    trackGain.Gain,
		TrackPeak:    tags.LinearPeak(trackGain.Peak),
		HasTrackPeak: trackGain.PeakKnown,
		Reference:    trackGain.Reference,
	}
	r.write(ctx, result, gt)
}

// write applies tags for one resolved track and sets its final status.
func (r *Runner) write(ctx context.Context, result *trackResult, gt tags.GainTags) {
	if r.dryRun {
		result.outcome.Status = report.StatusMeasured
		return
	}
	if result.format == tags.FormatUnknown {
		result.outcome.Status = report.StatusMeasured
		result.outcome.ErrorKind = report.KindUnsupported
		result.outcome.Error = fmt.Sprintf("no tag mapping for %q", result.spec.Path)
		return
	}
	if err := r.writer.Write(ctx, result.spec.Path, result.format, gt); err != nil {
		if errors.Is(err, tags.ErrUnsupportedFormat) {
			result.outcome.Status = report.StatusMeasured
			result.outcome.ErrorKind = report.KindUnsupported
			result.outcome.Error = err.Error()
			return
		}
		r.fail(&result.outcome, report.KindWrite, err)
		return
	}
	result.outcome.Status = report.StatusTagged
}

// finalizeAlbum computes the album gain once every member has resolved,
// then (in album mode) writes tags and records all member outcomes.
func (r *Runner) finalizeAlbum(ctx context.Context, key string, state *albumState, agg *report.Aggregator) {
	state.mu.Lock()
	results := state.results
	state.mu.Unlock()

	var loudness []gain.TrackLoudness
	excluded := 0
	for _, result := range results {
		if !result.measured {
			excluded++
			continue
		}
		peak, peakKnown := result.measurement.Peak()
		loudness = append(loudness, gain.TrackLoudness{
			Integrated: result.measurement.Integrated,
			Duration:   result.duration,
			Peak:       peak,
			PeakKnown:  peakKnown,
		})
	}

	albumOutcome := report.AlbumOutcome{
		Key:        key,
		TrackCount: len(results),
		Excluded:   excluded,
	}

	var albumGain gain.Result
	haveAlbumGain := false
	if r.mode == TagModeAlbum && len(loudness) > 0 {
		computed, err := r.gainCfg.Album(loudness)
		if err != nil {
			r.logger.Error("album gain computation failed",
				logging.String(logging.FieldAlbum, key),
				logging.Error(err))
		} else {
			albumGain = computed
			haveAlbumGain = true
			albumOutcome.AlbumGain = computed.Gain
			albumOutcome.HasAlbumGain = true
			albumOutcome.ClipAdjusted = computed.ClipAdjusted
			albumOutcome.Silence = computed.Silence
		}
	}

	for i := range results {
		result := &results[i]
		if r.mode == TagModeAlbum && result.measured {
			trackGain := r.gainCfg.Track(result.measurement)
			gt := tags.GainTags{
				TrackGain:    trackGain.Gain,
				TrackPeak:    tags.LinearPeak(trackGain.Peak),
				HasTrackPeak: trackGain.PeakKnown,
				Reference:    trackGain.Reference,
			}
			if haveAlbumGain {
				gt.HasAlbum = true
				gt.AlbumGain = albumGain.Gain
				gt.AlbumPeak = tags.LinearPeak(albumGain.Peak)
				gt.HasAlbumPeak = albumGain.PeakKnown
				result.outcome.AlbumGain = albumGain.Gain
				result.outcome.HasAlbumGain = true
			}
			r.write(ctx, result, gt)
		}
		if !result.measured && result.outcome.Status == report.StatusFailed {
			result.outcome.ExcludedFromAlbum = len(loudness) > 0
		}
		agg.AddTrack(result.outcome)
	}

	switch {
	case len(loudness) == 0:
		albumOutcome.Status = report.StatusFailed
	case excluded > 0:
		// Album gain was computed from the surviving members only.
		albumOutcome.Status = report.StatusMeasured
	default:
		albumOutcome.Status = report.StatusTagged
	}
	if r.mode != TagModeAlbum || r.dryRun {
		if len(loudness) > 0 {
			albumOutcome.Status = report.StatusMeasured
		}
	}
	agg.AddAlbum(albumOutcome)

	r.emit(report.ProgressEvent{Stage: report.StageFinalize, Album: key})
}

// fail marks an outcome failed with a classified error.
func (r *Runner) fail(outcome *report.TrackOutcome, kind string, err error) {
	outcome.Status = report.StatusFailed
	outcome.ErrorKind = kind
	outcome.Error = err.Error()
	r.logger.Error("track failed",
		logging.String(logging.FieldPath, outcome.Path),
		logging.String("kind", kind),
		logging.Error(err))
}

func (r *Runner) emit(event report.ProgressEvent) {
	if r.progress != nil {
		r.progress(event)
	}
}

func resultError(result trackResult) error {
	if result.outcome.Status == report.StatusFailed {
		return errors.New(result.outcome.Error)
	}
	return nil
}

// classifyAnalysis maps a measurement error onto a report error kind.
func classifyAnalysis(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return report.KindTimeout
	case errors.Is(err, context.Canceled):
		return report.KindCanceled
	}
	var spawnErr *analysis.SpawnError
	var exitErr *analysis.ExitError
	var parseErr *analysis.ParseError
	switch {
	case errors.As(err, &spawnErr):
		return report.KindSpawn
	case errors.As(err, &exitErr):
		return report.KindExit
	case errors.As(err, &parseErr):
		return report.KindParse
	}
	return report.KindInternal
}
