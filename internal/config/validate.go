package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	if err := c.validateSilence(); err != nil {
		return err
	}
	if err := c.validateMix(); err != nil {
		return err
	}
	if err := c.validateTagging(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if c.Paths.StagingMaxAgeHours < 0 {
		return errors.New("paths.staging_max_age_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.Quality < 0 || c.Engine.Quality > 9 {
		return fmt.Errorf("engine.quality must be between 0 and 9, got %d", c.Engine.Quality)
	}
	if c.Engine.TimeoutSeconds < 0 {
		return errors.New("engine.timeout_seconds must be >= 0")
	}
	if c.Codec.BitrateKbps <= 0 {
		return errors.New("codec.bitrate_kbps must be positive")
	}
	return nil
}

func (c *Config) validateSilence() error {
	switch c.Silence.Mode {
	case SilenceModeTrim, SilenceModeRemoveAll:
	default:
		return fmt.Errorf("silence.mode must be %q or %q, got %q", SilenceModeTrim, SilenceModeRemoveAll, c.Silence.Mode)
	}
	if c.Silence.NoiseDB >= 0 || c.Silence.OverreadNoiseDB >= 0 {
		return errors.New("silence.noise_db and silence.overread_noise_db must be negative")
	}
	if c.Silence.MinDuration <= 0 || c.Silence.RemoveAllMinDuration <= 0 {
		return errors.New("silence.min_duration and silence.remove_all_min_duration must be positive")
	}
	return nil
}

func (c *Config) validateMix() error {
	if c.Mix.OverlaySeconds < 0 {
		return errors.New("mix.overlay_seconds must be >= 0")
	}
	return nil
}

func (c *Config) validateTagging() error {
	if c.Tagging.CoverMaxSize <= 0 {
		return errors.New("tagging.cover_max_size must be positive")
	}
	if c.Download.TimeoutSeconds < 0 {
		return errors.New("download.timeout_seconds must be >= 0")
	}
	if (c.Download.MirrorHost == "") != (c.Download.MirrorBase == "") {
		return errors.New("download.mirror_host and download.mirror_base must be set together")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
