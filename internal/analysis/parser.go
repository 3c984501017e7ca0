package analysis

import (
	"math"
	"strconv"
	"strings"
)

// SummaryParser consumes the ebur128 telemetry stream line by line and
// assembles a Measurement from the summary block ffmpeg prints at the
// end of the run:
//
//	[Parsed_ebur128_0 @ 0x...] Summary:
//
//	  Integrated loudness:
//	    I:         -15.5 LUFS
//	    Threshold: -25.6 LUFS
//
//	  Loudness range:
//	    LRA:        11.2 LU
//	    ...
//
//	  Sample peak:
//	    Peak:       -0.3 dBFS
//
//	  True peak:
//	    Peak:       -0.2 dBFS
//
// The parser tolerates reordered sections, extra informational lines,
// locale decimal commas, and missing peak sections. Feeding lines after
// the summary ends is harmless.
type SummaryParser struct {
	inSummary bool
	section   string

	integrated *float64
	loudRange  *float64
	truePeak   *float64
	samplePeak *float64
}

const (
	sectionIntegrated = "integrated loudness"
	sectionRange      = "loudness range"
	sectionSamplePeak = "sample peak"
	sectionTruePeak   = "true peak"
)

// Feed consumes one telemetry line.
func (p *SummaryParser) Feed(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}

	if strings.HasSuffix(trimmed, "Summary:") {
		p.inSummary = true
		p.section = ""
		return
	}
	if !p.inSummary {
		return
	}

	key, value, ok := strings.Cut(trimmed, ":")
	if !ok {
		return
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	if value == "" {
		// Section header such as "Integrated loudness:".
		switch key {
		case sectionIntegrated, sectionRange, sectionSamplePeak, sectionTruePeak:
			p.section = key
		default:
			p.section = ""
		}
		return
	}

	number, ok := parseLoudnessValue(value)
	if !ok {
		return
	}

	switch {
	case key == "i" && p.section == sectionIntegrated:
		p.integrated = &number
	case key == "lra" && p.section == sectionRange:
		p.loudRange = &number
	case key == "peak" && p.section == sectionSamplePeak:
		p.samplePeak = &number
	case key == "peak" && p.section == sectionTruePeak:
		p.truePeak = &number
	}
}

// Result returns the assembled Measurement, or a ParseError when the
// stream ended without an integrated loudness value. Peak fields are
// optional; their absence is recorded, not fatal.
func (p *SummaryParser) Result() (Measurement, error) {
	if p.integrated == nil {
		return Measurement{}, &ParseError{Missing: "integrated loudness"}
	}

	m := Measurement{Integrated: *p.integrated}
	if p.loudRange != nil {
		m.Range = *p.loudRange
	}
	if p.truePeak != nil && !math.IsNaN(*p.truePeak) {
		m.TruePeak = *p.truePeak
		m.HasTruePeak = true
	}
	if p.samplePeak != nil && !math.IsNaN(*p.samplePeak) {
		m.SamplePeak = *p.samplePeak
		m.HasSamplePeak = true
	}
	return m, nil
}

// parseLoudnessValue extracts the leading numeric token from a summary
// value such as "-15.5 LUFS" or "-0,3 dBFS". It normalizes the decimal
// separator and understands the -inf and nan sentinels.
func parseLoudnessValue(value string) (float64, bool) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, false
	}
	token := strings.ReplaceAll(fields[0], ",", ".")

	switch strings.ToLower(token) {
	case "-inf":
		return math.Inf(-1), true
	case "inf", "+inf":
		return math.Inf(1), true
	case "nan", "-nan":
		return math.NaN(), true
	}

	number, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return number, true
}
