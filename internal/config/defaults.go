package config

const (
	defaultReferenceLoudness  = -18.0
	defaultMaxGain            = 24.0
	defaultPeakCeiling        = 0.0
	defaultFileTimeoutSeconds = 600
	defaultTagMode            = TagModeAlbum
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultCacheDir           = "~/.cache/gaintag"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Analysis: Analysis{
			ReferenceLoudness:  defaultReferenceLoudness,
			MaxGain:            defaultMaxGain,
			PeakCeiling:        defaultPeakCeiling,
			Parallelism:        0,
			FileTimeoutSeconds: defaultFileTimeoutSeconds,
			TruePeak:           true,
		},
		Tags: Tags{
			Mode: defaultTagMode,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Cache: Cache{
			Enabled: false,
			Dir:     defaultCacheDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
