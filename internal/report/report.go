// Package report collects per-file and per-album outcomes into the final
// batch report and defines the progress events emitted while a batch runs.
package report

import (
	"sort"
	"sync"
	"time"
)

// Status is the terminal state of a track or album.
type Status string

const (
	// StatusTagged means the file was measured and its tags written.
	StatusTagged Status = "tagged"
	// StatusMeasured means measurement succeeded but no tag was written
	// (unsupported format, or a dry run).
	StatusMeasured Status = "measured"
	// StatusSkipped means the file was not processed (not an audio file,
	// batch canceled before its job started).
	StatusSkipped Status = "skipped"
	// StatusFailed means analysis or tag writing failed.
	StatusFailed Status = "failed"
)

// Error kinds recorded on failed outcomes.
const (
	KindSpawn       = "process_spawn"
	KindExit        = "process_exit"
	KindParse       = "parse"
	KindTimeout     = "timeout"
	KindCanceled    = "canceled"
	KindProbe       = "probe"
	KindUnsupported = "unsupported_format"
	KindWrite       = "write"
	KindInternal    = "internal"
)

// TrackOutcome is the terminal record for one file.
type TrackOutcome struct {
	Path  string
	Album string

	Status    Status
	ErrorKind string
	Error     string

	TrackGain    float64 // dB
	HasTrackGain bool
	AlbumGain    float64 // dB
	HasAlbumGain bool

	ClipAdjusted     bool
	ClipCheckSkipped bool
	Silence          bool
	ExcludedFromAlbum bool
	CacheHit         bool
}

// AlbumOutcome is the terminal record for one album grouping.
type AlbumOutcome struct {
	Key    string
	Status Status

	AlbumGain    float64 // dB
	HasAlbumGain bool
	ClipAdjusted bool
	Silence      bool

	TrackCount int
	Excluded   int
}

// Counts aggregates terminal track states.
type Counts struct {
	Tagged   int
	Measured int
	Skipped  int
	Failed   int
}

// Total returns the number of tracks accounted for.
func (c Counts) Total() int {
	return c.Tagged + c.Measured + c.Skipped + c.Failed
}

// Report is the final result of one batch run.
type Report struct {
	RunID    string
	Started  time.Time
	Finished time.Time

	Tracks []TrackOutcome
	Albums []AlbumOutcome
}

// Counts tallies the track outcomes.
func (r *Report) Counts() Counts {
	var counts Counts
	for _, track := range r.Tracks {
		switch track.Status {
		case StatusTagged:
			counts.Tagged++
		case StatusMeasured:
			counts.Measured++
		case StatusSkipped:
			counts.Skipped++
		case StatusFailed:
			counts.Failed++
		}
	}
	return counts
}

// HasFailures reports whether any track or album failed.
func (r *Report) HasFailures() bool {
	for _, track := range r.Tracks {
		if track.Status == StatusFailed {
			return true
		}
	}
	for _, album := range r.Albums {
		if album.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Stage identifies the pipeline step a progress event refers to.
type Stage string

const (
	StageAnalyze  Stage = "analyze"
	StageFinalize Stage = "finalize"
)

// ProgressEvent is emitted once per completed job so a caller-provided
// UI can render live status. Err is nil for successful jobs.
type ProgressEvent struct {
	Stage Stage
	Path  string // set for analyze events
	Album string
	Err   error
}

// ProgressFunc receives progress events. Implementations must be safe
// for concurrent calls from worker goroutines.
type ProgressFunc func(ProgressEvent)

// Aggregator accumulates outcomes from concurrent workers.
type Aggregator struct {
	mu     sync.Mutex
	runID  string
	start  time.Time
	tracks []TrackOutcome
	albums []AlbumOutcome
}

// NewAggregator starts collecting for one batch run.
func NewAggregator(runID string) *Aggregator {
	return &Aggregator{runID: runID, start: time.Now()}
}

// AddTrack records one track's terminal outcome.
func (a *Aggregator) AddTrack(outcome TrackOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracks = append(a.tracks, outcome)
}

// AddAlbum records one album's terminal outcome.
func (a *Aggregator) AddAlbum(outcome AlbumOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.albums = append(a.albums, outcome)
}

// Finalize returns the assembled report, sorted for stable output.
func (a *Aggregator) Finalize() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	tracks := append([]TrackOutcome(nil), a.tracks...)
	albums := append([]AlbumOutcome(nil), a.albums...)
	sort.Slice(tracks, func(i, j int) bool { return tracks[i].Path < tracks[j].Path })
	sort.Slice(albums, func(i, j int) bool { return albums[i].Key < albums[j].Key })

	return &Report{
		RunID:    a.runID,
		Started:  a.start,
		Finished: time.Now(),
		Tracks:   tracks,
		Albums:   albums,
	}
}
