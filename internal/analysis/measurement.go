package analysis

import "math"

// Measurement is the immutable result of one loudness analysis run.
// Integrated is negative infinity for digital silence. TruePeak and
// SamplePeak are optional: older ffmpeg builds omit the true peak
// section, and some containers defeat sample peak reporting.
type Measurement struct {
	Integrated float64 // LUFS
	Range      float64 // LU

	TruePeak    float64 // dBFS
	HasTruePeak bool

	SamplePeak    float64 // dBFS
	HasSamplePeak bool
}

// Silent reports whether the track measured as digital silence.
func (m Measurement) Silent() bool {
	return math.IsInf(m.Integrated, -1)
}

// Peak returns the best available peak value in dBFS, preferring true
// peak over sample peak. The boolean is false when neither was measured.
func (m Measurement) Peak() (float64, bool) {
	if m.HasTruePeak {
		return m.TruePeak, true
	}
	if m.HasSamplePeak {
		return m.SamplePeak, true
	}
	return 0, false
}
