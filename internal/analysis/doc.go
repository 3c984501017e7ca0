// Package analysis launches an external ffmpeg process per audio file to
// run the EBU R128 ebur128 filter and parses the loudness summary it
// prints, yielding one Measurement per successful run.
//
// It exposes a Meter interface and a CLI implementation that shells out
// to ffmpeg. Tests can swap in fakes to exercise scheduling behaviour
// without decoding real audio.
package analysis
