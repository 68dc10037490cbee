package config

const (
	defaultConfigPath         = "~/.config/episodic/config.toml"
	defaultStagingDir         = "~/.local/share/episodic/staging"
	defaultStateDir           = "~/.local/share/episodic/state"
	defaultLogDir             = "~/.local/share/episodic/logs"
	defaultStagingMaxAgeHours = 48
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultQuality            = 3
	defaultSilenceMode        = SilenceModeTrim
	defaultNoiseDB            = -60
	defaultOverreadNoiseDB    = -50
	defaultMinSilence         = 1
	defaultBitrateKbps        = 64
	defaultSampleRate         = "44.1k"
	defaultGenre              = "Podcast"
	defaultCoverMaxSize       = 300
	defaultDownloadTimeout    = 120
	defaultUserAgent          = "episodic/dev"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Silence modes.
const (
	SilenceModeTrim      = "trim"
	SilenceModeRemoveAll = "remove_all"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir:         defaultStagingDir,
			StateDir:           defaultStateDir,
			LogDir:             defaultLogDir,
			StagingMaxAgeHours: defaultStagingMaxAgeHours,
		},
		Engine: Engine{
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
			Quality:       defaultQuality,
		},
		Silence: Silence{
			Mode:                 defaultSilenceMode,
			NoiseDB:              defaultNoiseDB,
			OverreadNoiseDB:      defaultOverreadNoiseDB,
			MinDuration:          defaultMinSilence,
			RemoveAllMinDuration: defaultMinSilence,
		},
		Codec: Codec{
			BitrateKbps: defaultBitrateKbps,
		},
		Loudness: Loudness{
			Enabled:        true,
			IntegratedLUFS: -14,
			TruePeak:       -2,
			LRA:            11,
			MeasuredI:      -19.5,
			MeasuredLRA:    5.7,
			MeasuredTP:     -0.1,
			MeasuredThresh: -30.20,
			SampleRate:     defaultSampleRate,
		},
		Tagging: Tagging{
			Genre:        defaultGenre,
			CoverMaxSize: defaultCoverMaxSize,
		},
		Download: Download{
			TimeoutSeconds: defaultDownloadTimeout,
			UserAgent:      defaultUserAgent,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
