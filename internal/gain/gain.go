// Package gain converts loudness measurements into clip-safe ReplayGain
// track and album gains.
package gain

import (
	"errors"
	"math"

	"gaintag/internal/analysis"
)

// ErrInsufficientData reports an album gain computation attempted without
// any resolved track measurements. The scheduler barrier makes this
// unreachable in normal operation.
var ErrInsufficientData = errors.New("album gain requires at least one measured track")

// Config holds the calculation parameters.
type Config struct {
	// ReferenceLoudness is the playback target in LUFS.
	ReferenceLoudness float64
	// MaxGain clamps the absolute magnitude of any computed gain, in dB.
	MaxGain float64
	// PeakCeiling is the highest peak permitted after gain application, in dBFS.
	PeakCeiling float64
}

// Result is one computed gain, for a track or an album.
type Result struct {
	// Gain is the recommended adjustment in dB.
	Gain float64
	// Reference is the loudness target the gain aims at, in LUFS.
	Reference float64
	// Peak is the pre-gain peak in dBFS. Only meaningful when PeakKnown.
	Peak float64
	// PeakKnown reports whether any peak measurement was available.
	PeakKnown bool
	// ClipAdjusted reports that the gain was reduced to keep the peak
	// under the ceiling.
	ClipAdjusted bool
	// ClipCheckSkipped reports that clipping prevention could not run
	// because no peak data was available.
	ClipCheckSkipped bool
	// Silence reports that the source measured as digital silence and the
	// gain was pinned to 0 dB.
	Silence bool
}

// PeakAfterGain returns the projected peak in dBFS once the gain is applied.
func (r Result) PeakAfterGain() float64 {
	return r.Peak + r.Gain
}

// Track computes the gain for a single measured track.
func (c Config) Track(m analysis.Measurement) Result {
	peak, peakKnown := m.Peak()
	result := Result{
		Reference: c.ReferenceLoudness,
		Peak:      peak,
		PeakKnown: peakKnown,
	}

	if m.Silent() {
		// Digital silence would otherwise request unbounded gain.
		result.Silence = true
		return result
	}

	result.Gain = c.clamp(c.ReferenceLoudness - m.Integrated)
	c.preventClipping(&result)
	return result
}

// TrackLoudness is one album member's contribution to the album gain.
type TrackLoudness struct {
	// Integrated loudness in LUFS; negative infinity for silence.
	Integrated float64
	// Duration in seconds. Non-positive durations fall back to equal weighting.
	Duration float64
	// Peak in dBFS, when measured.
	Peak      float64
	PeakKnown bool
}

// Album computes the gain for an album from its resolved member tracks.
// Failed tracks must be excluded by the caller before this is reached.
func (c Config) Album(tracks []TrackLoudness) (Result, error) {
	if len(tracks) == 0 {
		return Result{}, ErrInsufficientData
	}

	loudness := AlbumLoudness(tracks)

	result := Result{Reference: c.ReferenceLoudness}
	for _, track := range tracks {
		if !track.PeakKnown {
			continue
		}
		if !result.PeakKnown || track.Peak > result.Peak {
			result.Peak = track.Peak
			result.PeakKnown = true
		}
	}

	if math.IsInf(loudness, -1) {
		result.Silence = true
		return result, nil
	}

	result.Gain = c.clamp(c.ReferenceLoudness - loudness)
	c.preventClipping(&result)
	return result, nil
}

// AlbumLoudness aggregates per-track integrated loudness into an album
// loudness. LUFS is logarithmic, so the mean is taken over linear-domain
// energies weighted by track duration, then converted back:
//
//	L_album = 10·log10( Σ dᵢ·10^(Lᵢ/10) / Σ dᵢ )
//
// Silent tracks contribute duration but no energy. Returns negative
// infinity when the whole album is silent.
func AlbumLoudness(tracks []TrackLoudness) float64 {
	var energySum, weightSum float64
	for _, track := range tracks {
		weight := track.Duration
		if weight <= 0 || math.IsNaN(weight) {
			weight = 1
		}
		weightSum += weight
		if math.IsInf(track.Integrated, -1) {
			continue
		}
		energySum += weight * math.Pow(10, track.Integrated/10)
	}
	if weightSum == 0 || energySum == 0 {
		return math.Inf(-1)
	}
	return 10 * math.Log10(energySum/weightSum)
}

func (c Config) clamp(gain float64) float64 {
	if c.MaxGain <= 0 {
		return gain
	}
	if gain > c.MaxGain {
		return c.MaxGain
	}
	if gain < -c.MaxGain {
		return -c.MaxGain
	}
	return gain
}

// preventClipping reduces the gain so the post-gain peak stays at or
// below the ceiling. Without peak data the check is skipped and flagged;
// the caller decides whether that is acceptable.
func (c Config) preventClipping(result *Result) {
	if !result.PeakKnown {
		result.ClipCheckSkipped = true
		return
	}
	if result.Peak+result.Gain <= c.PeakCeiling {
		return
	}
	result.Gain = c.PeakCeiling - result.Peak
	result.ClipAdjusted = true
}
