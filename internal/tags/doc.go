// Package tags writes ReplayGain 2.0 values into audio file tags without
// re-encoding the audio payload. Each supported container format has its
// own writer; a dispatcher selects one from the detected format.
package tags
