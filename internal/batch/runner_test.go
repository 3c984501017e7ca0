package batch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gaintag/internal/analysis"
	"gaintag/internal/gain"
	"gaintag/internal/media/ffprobe"
	"gaintag/internal/report"
	"gaintag/internal/scancache"
	"gaintag/internal/tags"
)

type fakeMeter struct {
	mu           sync.Mutex
	measurements map[string]analysis.Measurement
	errs         map[string]error
	calls        []string
	block        func(ctx context.Context, path string)
}

func (m *fakeMeter) Measure(ctx context.Context, path string) (analysis.Measurement, error) {
	if m.block != nil {
		m.block(ctx, path)
	}
	m.mu.Lock()
	m.calls = append(m.calls, path)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return analysis.Measurement{}, err
	}
	if err, ok := m.errs[path]; ok {
		return analysis.Measurement{}, err
	}
	if measurement, ok := m.measurements[path]; ok {
		return measurement, nil
	}
	return analysis.Measurement{Integrated: -18, HasTruePeak: true, TruePeak: -6}, nil
}

func (m *fakeMeter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func fakeProbe(formatName, codecName string, duration float64) Prober {
	return ProberFunc(func(ctx context.Context, path string) (ffprobe.Result, error) {
		return ffprobe.Result{
			Streams: []ffprobe.Stream{{CodecName: codecName, CodecType: "audio"}},
			Format:  ffprobe.Format{FormatName: formatName, Duration: "200"},
		}, nil
	})
}

type writeCall struct {
	path   string
	format tags.Format
	gt     tags.GainTags
}

type fakeWriter struct {
	mu    sync.Mutex
	calls []writeCall
	errs  map[string]error
}

func (w *fakeWriter) Write(ctx context.Context, path string, format tags.Format, gt tags.GainTags) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.errs[path]; ok {
		return err
	}
	w.calls = append(w.calls, writeCall{path: path, format: format, gt: gt})
	return nil
}

func (w *fakeWriter) byPath() map[string]writeCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]writeCall, len(w.calls))
	for _, call := range w.calls {
		out[call.path] = call
	}
	return out
}

var testGain = gain.Config{ReferenceLoudness: -18, MaxGain: 24, PeakCeiling: 0}

func albumFiles() []FileSpec {
	return []FileSpec{
		{Path: "/music/album/01.flac", AlbumKey: "/music/album"},
		{Path: "/music/album/02.flac", AlbumKey: "/music/album"},
		{Path: "/music/album/03.flac", AlbumKey: "/music/album"},
	}
}

func TestAlbumModeWritesTrackAndAlbumGain(t *testing.T) {
	meter := &fakeMeter{measurements: map[string]analysis.Measurement{
		"/music/album/01.flac": {Integrated: -13, HasTruePeak: true, TruePeak: -4},
		"/music/album/02.flac": {Integrated: -18, HasTruePeak: true, TruePeak: -7},
		"/music/album/03.flac": {Integrated: -23, HasTruePeak: true, TruePeak: -10},
	}}
	writer := &fakeWriter{}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
		WithTagMode(TagModeAlbum),
		WithParallelism(2),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}

	counts := rep.Counts()
	if counts.Tagged != 3 || counts.Failed != 0 {
		t.Fatalf("counts: %+v", counts)
	}
	if len(rep.Albums) != 1 || rep.Albums[0].Status != report.StatusTagged {
		t.Fatalf("albums: %+v", rep.Albums)
	}

	expected, err := testGain.Album([]gain.TrackLoudness{
		{Integrated: -13, Duration: 200, Peak: -4, PeakKnown: true},
		{Integrated: -18, Duration: 200, Peak: -7, PeakKnown: true},
		{Integrated: -23, Duration: 200, Peak: -10, PeakKnown: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	calls := writer.byPath()
	if len(calls) != 3 {
		t.Fatalf("expected 3 writes, got %d", len(calls))
	}
	for path, call := range calls {
		if !call.gt.HasAlbum {
			t.Fatalf("%s: album tags missing", path)
		}
		if call.gt.AlbumGain != expected.Gain {
			t.Fatalf("%s: album gain %g, want %g", path, call.gt.AlbumGain, expected.Gain)
		}
	}
	if gt := calls["/music/album/01.flac"].gt; math.Abs(gt.TrackGain-(-5)) > 1e-9 {
		t.Fatalf("track gain: %g", gt.TrackGain)
	}
}

func TestTrackModeOmitsAlbumTags(t *testing.T) {
	meter := &fakeMeter{}
	writer := &fakeWriter{}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
		WithTagMode(TagModeTrack),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}
	if counts := rep.Counts(); counts.Tagged != 3 {
		t.Fatalf("counts: %+v", counts)
	}
	for path, call := range writer.byPath() {
		if call.gt.HasAlbum {
			t.Fatalf("%s: unexpected album tags in track mode", path)
		}
	}
	for _, album := range rep.Albums {
		if album.HasAlbumGain {
			t.Fatalf("album gain computed in track mode: %+v", album)
		}
	}
}

func TestFailedTrackExcludedFromAlbum(t *testing.T) {
	meter := &fakeMeter{
		measurements: map[string]analysis.Measurement{
			"/music/album/01.flac": {Integrated: -15, HasTruePeak: true, TruePeak: -5},
			"/music/album/03.flac": {Integrated: -21, HasTruePeak: true, TruePeak: -9},
		},
		errs: map[string]error{
			"/music/album/02.flac": &analysis.ExitError{ExitCode: 1, Stderr: "decode error"},
		},
	}
	writer := &fakeWriter{}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}

	counts := rep.Counts()
	if counts.Tagged != 2 || counts.Failed != 1 {
		t.Fatalf("counts: %+v", counts)
	}

	var failed report.TrackOutcome
	for _, track := range rep.Tracks {
		if track.Status == report.StatusFailed {
			failed = track
		}
	}
	if failed.Path != "/music/album/02.flac" || failed.ErrorKind != report.KindExit {
		t.Fatalf("failed outcome: %+v", failed)
	}
	if !failed.ExcludedFromAlbum {
		t.Fatalf("failed track should be marked excluded: %+v", failed)
	}

	album := rep.Albums[0]
	if album.Status != report.StatusMeasured || album.Excluded != 1 || !album.HasAlbumGain {
		t.Fatalf("album outcome: %+v", album)
	}

	expected, err := testGain.Album([]gain.TrackLoudness{
		{Integrated: -15, Duration: 200, Peak: -5, PeakKnown: true},
		{Integrated: -21, Duration: 200, Peak: -9, PeakKnown: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if album.AlbumGain != expected.Gain {
		t.Fatalf("album gain %g, want %g", album.AlbumGain, expected.Gain)
	}
	if len(writer.byPath()) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(writer.byPath()))
	}
}

func TestAllTracksFailedFailsAlbum(t *testing.T) {
	meter := &fakeMeter{errs: map[string]error{
		"/music/album/01.flac": &analysis.SpawnError{Binary: "ffmpeg", Err: errors.New("not found")},
		"/music/album/02.flac": &analysis.SpawnError{Binary: "ffmpeg", Err: errors.New("not found")},
		"/music/album/03.flac": &analysis.SpawnError{Binary: "ffmpeg", Err: errors.New("not found")},
	}}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(&fakeWriter{}),
		WithGainConfig(testGain),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}
	if counts := rep.Counts(); counts.Failed != 3 {
		t.Fatalf("counts: %+v", counts)
	}
	if rep.Albums[0].Status != report.StatusFailed {
		t.Fatalf("album outcome: %+v", rep.Albums[0])
	}
	for _, track := range rep.Tracks {
		if track.ErrorKind != report.KindSpawn {
			t.Fatalf("error kind: %+v", track)
		}
		if track.ExcludedFromAlbum {
			t.Fatalf("no album gain existed to exclude from: %+v", track)
		}
	}
}

func TestFinalizeRunsAfterEveryMember(t *testing.T) {
	// Hold every measurement until all three workers are in flight, so a
	// premature finalize would be observable regardless of scheduling.
	var gate sync.WaitGroup
	gate.Add(3)
	meter := &fakeMeter{block: func(ctx context.Context, path string) {
		gate.Done()
		gate.Wait()
	}}

	var mu sync.Mutex
	var events []report.ProgressEvent
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(&fakeWriter{}),
		WithGainConfig(testGain),
		WithParallelism(3),
		WithProgress(func(event report.ProgressEvent) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		}),
	)

	if _, err := runner.Run(context.Background(), albumFiles()); err != nil {
		t.Fatal(err)
	}

	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	for _, event := range events[:3] {
		if event.Stage != report.StageAnalyze {
			t.Fatalf("finalize ran before all members resolved: %+v", events)
		}
	}
	if events[3].Stage != report.StageFinalize || events[3].Album != "/music/album" {
		t.Fatalf("last event: %+v", events[3])
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	writer := &fakeWriter{}
	runner := New(&fakeMeter{},
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
		WithDryRun(true),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}
	if counts := rep.Counts(); counts.Measured != 3 || counts.Tagged != 0 {
		t.Fatalf("counts: %+v", counts)
	}
	if len(writer.byPath()) != 0 {
		t.Fatal("dry run must not write tags")
	}
	if rep.Albums[0].Status != report.StatusMeasured || !rep.Albums[0].HasAlbumGain {
		t.Fatalf("album outcome: %+v", rep.Albums[0])
	}
	for _, track := range rep.Tracks {
		if !track.HasTrackGain || !track.HasAlbumGain {
			t.Fatalf("dry run should still compute gains: %+v", track)
		}
	}
}

func TestUnsupportedFormatStillCountsForAlbum(t *testing.T) {
	writer := &fakeWriter{}
	runner := New(&fakeMeter{},
		WithProber(fakeProbe("wav", "pcm_s16le", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
	)

	files := []FileSpec{
		{Path: "/music/album/01.wav", AlbumKey: "/music/album"},
		{Path: "/music/album/02.wav", AlbumKey: "/music/album"},
	}
	rep, err := runner.Run(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	if counts := rep.Counts(); counts.Measured != 2 || counts.Failed != 0 {
		t.Fatalf("counts: %+v", counts)
	}
	for _, track := range rep.Tracks {
		if track.ErrorKind != report.KindUnsupported {
			t.Fatalf("error kind: %+v", track)
		}
		if !track.HasAlbumGain {
			t.Fatalf("album gain should still be computed: %+v", track)
		}
	}
	if len(writer.byPath()) != 0 {
		t.Fatal("unsupported formats must not be written")
	}
}

func TestWriteFailureFailsTrack(t *testing.T) {
	writer := &fakeWriter{errs: map[string]error{
		"/music/album/02.flac": errors.New("disk full"),
	}}
	runner := New(&fakeMeter{},
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(writer),
		WithGainConfig(testGain),
	)

	rep, err := runner.Run(context.Background(), albumFiles())
	if err != nil {
		t.Fatal(err)
	}
	counts := rep.Counts()
	if counts.Tagged != 2 || counts.Failed != 1 {
		t.Fatalf("counts: %+v", counts)
	}
	for _, track := range rep.Tracks {
		if track.Status == report.StatusFailed && track.ErrorKind != report.KindWrite {
			t.Fatalf("error kind: %+v", track)
		}
	}
}

func TestTimeoutClassified(t *testing.T) {
	meter := &fakeMeter{block: func(ctx context.Context, path string) {
		<-ctx.Done()
	}}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(&fakeWriter{}),
		WithGainConfig(testGain),
		WithFileTimeout(10*time.Millisecond),
	)

	files := []FileSpec{{Path: "/music/album/01.flac", AlbumKey: "/music/album"}}
	rep, err := runner.Run(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	track := rep.Tracks[0]
	if track.Status != report.StatusFailed || track.ErrorKind != report.KindTimeout {
		t.Fatalf("outcome: %+v", track)
	}
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]scancache.Entry
	puts    int
}

func (c *fakeCache) Get(ctx context.Context, path string, size, mtimeNS int64) (scancache.Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[path]
	return entry, ok, nil
}

func (c *fakeCache) Put(ctx context.Context, path string, size, mtimeNS int64, entry scancache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]scancache.Entry)
	}
	c.entries[path] = entry
	c.puts++
	return nil
}

func TestCacheHitSkipsMeasurement(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "01.flac")
	if err := os.WriteFile(path, []byte("fLaC"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := &fakeCache{entries: map[string]scancache.Entry{
		path: {Measurement: analysis.Measurement{Integrated: -12, HasTruePeak: true, TruePeak: -3}},
	}}
	meter := &fakeMeter{}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(&fakeWriter{}),
		WithGainConfig(testGain),
		WithCache(cache),
	)

	rep, err := runner.Run(context.Background(), []FileSpec{{Path: path, AlbumKey: dir}})
	if err != nil {
		t.Fatal(err)
	}
	if meter.callCount() != 0 {
		t.Fatalf("meter invoked %d times on cache hit", meter.callCount())
	}
	track := rep.Tracks[0]
	if !track.CacheHit || !track.HasTrackGain {
		t.Fatalf("outcome: %+v", track)
	}
	if math.Abs(track.TrackGain-(-6)) > 1e-9 {
		t.Fatalf("track gain from cached measurement: %g", track.TrackGain)
	}
}

func TestCacheMissMeasuresAndStores(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "01.flac")
	if err := os.WriteFile(path, []byte("fLaC"), 0o644); err != nil {
		t.Fatal(err)
	}

	cache := &fakeCache{}
	meter := &fakeMeter{}
	runner := New(meter,
		WithProber(fakeProbe("flac", "flac", 200)),
		WithTagWriter(&fakeWriter{}),
		WithGainConfig(testGain),
		WithCache(cache),
	)

	if _, err := runner.Run(context.Background(), []FileSpec{{Path: path, AlbumKey: dir}}); err != nil {
		t.Fatal(err)
	}
	if meter.callCount() != 1 {
		t.Fatalf("meter calls: %d", meter.callCount())
	}
	if cache.puts != 1 {
		t.Fatalf("cache puts: %d", cache.puts)
	}
}

func TestEmptyBatch(t *testing.T) {
	runner := New(&fakeMeter{}, WithGainConfig(testGain))
	rep, err := runner.Run(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rep.Tracks) != 0 || len(rep.Albums) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}
