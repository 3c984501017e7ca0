package scancache

import (
	"context"
	"errors"
	"math"
	"testing"

	"gaintag/internal/analysis"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	entry := Entry{
		Measurement: analysis.Measurement{
			Integrated: -14.2, Range: 7.3,
			TruePeak: -0.4, HasTruePeak: true,
			SamplePeak: -0.6, HasSamplePeak: true,
		},
		Duration:   212.5,
		FormatName: "flac",
		CodecName:  "flac",
	}
	if err := store.Put(ctx, "/music/a.flac", 1000, 42, entry); err != nil {
		t.Fatal(err)
	}

	got, hit, err := store.Get(ctx, "/music/a.flac", 1000, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if got.Measurement != entry.Measurement {
		t.Fatalf("measurement mismatch: %+v vs %+v", got.Measurement, entry.Measurement)
	}
	if got.Duration != entry.Duration || got.FormatName != "flac" {
		t.Fatalf("entry mismatch: %+v", got)
	}
}

func TestGetMissOnChangedFile(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	entry := Entry{Measurement: analysis.Measurement{Integrated: -10}, Duration: 1, FormatName: "mp3", CodecName: "mp3"}
	if err := store.Put(ctx, "/music/b.mp3", 500, 7, entry); err != nil {
		t.Fatal(err)
	}

	if _, hit, err := store.Get(ctx, "/music/b.mp3", 501, 7); err != nil || hit {
		t.Fatalf("size change should miss (hit=%v err=%v)", hit, err)
	}
	if _, hit, err := store.Get(ctx, "/music/b.mp3", 500, 8); err != nil || hit {
		t.Fatalf("mtime change should miss (hit=%v err=%v)", hit, err)
	}
	if _, hit, err := store.Get(ctx, "/music/unknown.mp3", 1, 1); err != nil || hit {
		t.Fatalf("unknown path should miss (hit=%v err=%v)", hit, err)
	}
}

func TestPutPreservesMissingPeaks(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	entry := Entry{
		Measurement: analysis.Measurement{Integrated: math.Inf(-1), Range: 0},
		Duration:    30,
		FormatName:  "ogg",
		CodecName:   "vorbis",
	}
	if err := store.Put(ctx, "/music/silence.ogg", 10, 1, entry); err != nil {
		t.Fatal(err)
	}

	got, hit, err := store.Get(ctx, "/music/silence.ogg", 10, 1)
	if err != nil || !hit {
		t.Fatalf("expected hit, err=%v", err)
	}
	if !got.Measurement.Silent() {
		t.Fatalf("silence lost in round trip: %+v", got.Measurement)
	}
	if got.Measurement.HasTruePeak || got.Measurement.HasSamplePeak {
		t.Fatalf("missing peaks should stay missing: %+v", got.Measurement)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	first := Entry{Measurement: analysis.Measurement{Integrated: -10}, Duration: 1, FormatName: "mp3", CodecName: "mp3"}
	second := Entry{Measurement: analysis.Measurement{Integrated: -12}, Duration: 2, FormatName: "mp3", CodecName: "mp3"}
	if err := store.Put(ctx, "/music/c.mp3", 1, 1, first); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, "/music/c.mp3", 2, 2, second); err != nil {
		t.Fatal(err)
	}

	got, hit, err := store.Get(ctx, "/music/c.mp3", 2, 2)
	if err != nil || !hit {
		t.Fatalf("expected hit, err=%v", err)
	}
	if got.Measurement.Integrated != -12 {
		t.Fatalf("expected replacement, got %g", got.Measurement.Integrated)
	}
}

func TestClear(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	entry := Entry{Measurement: analysis.Measurement{Integrated: -10}, Duration: 1, FormatName: "mp3", CodecName: "mp3"}
	if err := store.Put(ctx, "/music/d.mp3", 1, 1, entry); err != nil {
		t.Fatal(err)
	}

	dropped, err := store.Clear(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if dropped != 1 {
		t.Fatalf("dropped: %d", dropped)
	}
	if _, hit, _ := store.Get(ctx, "/music/d.mp3", 1, 1); hit {
		t.Fatal("cache should be empty")
	}
}

func TestOpenRefusesSecondLock(t *testing.T) {
	dir := t.TempDir()
	first, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	if _, err := Open(dir); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}
