package tags

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// Format identifies a supported tag container.
type Format string

const (
	FormatMP3     Format = "mp3"
	FormatFLAC    Format = "flac"
	FormatVorbis  Format = "vorbis"
	FormatOpus    Format = "opus"
	FormatM4A     Format = "m4a"
	FormatUnknown Format = ""
)

// Detect maps ffprobe's container format name and audio codec onto a tag
// format. The file extension breaks ties when ffprobe output is missing
// or ambiguous.
func Detect(formatName, codecName, path string) Format {
	format := strings.ToLower(strings.TrimSpace(formatName))
	codec := strings.ToLower(strings.TrimSpace(codecName))

	switch {
	case format == "mp3":
		return FormatMP3
	case format == "flac":
		return FormatFLAC
	case format == "ogg":
		if codec == "opus" {
			return FormatOpus
		}
		return FormatVorbis
	case strings.Contains(format, "mp4") || strings.Contains(format, "m4a"):
		return FormatM4A
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatVorbis
	case ".opus":
		return FormatOpus
	case ".m4a", ".mp4":
		return FormatM4A
	}
	return FormatUnknown
}

// ReplayGain 2.0 tag keys, shared across all writers.
const (
	KeyTrackGain = "REPLAYGAIN_TRACK_GAIN"
	KeyTrackPeak = "REPLAYGAIN_TRACK_PEAK"
	KeyAlbumGain = "REPLAYGAIN_ALBUM_GAIN"
	KeyAlbumPeak = "REPLAYGAIN_ALBUM_PEAK"
	KeyReference = "REPLAYGAIN_REFERENCE_LOUDNESS"
)

// GainTags is the full set of values one file receives.
type GainTags struct {
	TrackGain    float64 // dB
	TrackPeak    float64 // linear amplitude
	HasTrackPeak bool

	AlbumGain    float64 // dB
	AlbumPeak    float64 // linear amplitude
	HasAlbum     bool
	HasAlbumPeak bool

	Reference float64 // LUFS
}

type tagPair struct {
	key   string
	value string
}

func (t GainTags) pairs() []tagPair {
	pairs := make([]tagPair, 0, 5)
	pairs = append(pairs, tagPair{KeyTrackGain, FormatGain(t.TrackGain)})
	if t.HasTrackPeak {
		pairs = append(pairs, tagPair{KeyTrackPeak, FormatPeak(t.TrackPeak)})
	}
	if t.HasAlbum {
		pairs = append(pairs, tagPair{KeyAlbumGain, FormatGain(t.AlbumGain)})
		if t.HasAlbumPeak {
			pairs = append(pairs, tagPair{KeyAlbumPeak, FormatPeak(t.AlbumPeak)})
		}
	}
	pairs = append(pairs, tagPair{KeyReference, FormatReference(t.Reference)})
	return pairs
}

// FormatGain renders a gain value the way players expect it, e.g. "-9.00 dB".
func FormatGain(gain float64) string {
	return fmt.Sprintf("%.2f dB", gain)
}

// FormatPeak renders a linear peak amplitude, e.g. "0.354813".
func FormatPeak(peak float64) string {
	return fmt.Sprintf("%.6f", peak)
}

// FormatReference renders the reference loudness, e.g. "-18.00 LUFS".
func FormatReference(reference float64) string {
	return fmt.Sprintf("%.2f LUFS", reference)
}

// LinearPeak converts a peak in dBFS to linear amplitude.
func LinearPeak(db float64) float64 {
	return math.Pow(10, db/20)
}

func isReplayGainKey(key string) bool {
	return strings.HasPrefix(strings.ToUpper(key), "REPLAYGAIN_")
}
