package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains working directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	// StagingMaxAgeHours bounds how long abandoned run directories survive `episodic clean`.
	StagingMaxAgeHours int `toml:"staging_max_age_hours"`
}

// Engine configures the external transcoder.
type Engine struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	// Quality is the VBR quality passed as -q:a to every encoding stage.
	Quality int `toml:"quality"`
	// TimeoutSeconds caps a single engine invocation; 0 disables the cap.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Silence contains silence detection thresholds.
type Silence struct {
	// Mode selects "trim" (head/tail only) or "remove_all" (every long gap).
	Mode            string  `toml:"mode"`
	NoiseDB         float64 `toml:"noise_db"`
	OverreadNoiseDB float64 `toml:"overread_noise_db"`
	MinDuration     float64 `toml:"min_duration"`
	// RemoveAllMinDuration is the minimum gap length removed in remove_all mode.
	RemoveAllMinDuration float64 `toml:"remove_all_min_duration"`
}

// Codec configures MP3 normalization.
type Codec struct {
	BitrateKbps int  `toml:"bitrate_kbps"`
	ForceMP3    bool `toml:"force_mp3"`
}

// Mix configures intro/outro composition.
type Mix struct {
	OverlaySeconds float64 `toml:"overlay_seconds"`
}

// Loudness configures the linear loudnorm pass.
type Loudness struct {
	Enabled        bool    `toml:"enabled"`
	IntegratedLUFS float64 `toml:"integrated_lufs"`
	TruePeak       float64 `toml:"true_peak"`
	LRA            float64 `toml:"lra"`
	MeasuredI      float64 `toml:"measured_i"`
	MeasuredLRA    float64 `toml:"measured_lra"`
	MeasuredTP     float64 `toml:"measured_tp"`
	MeasuredThresh float64 `toml:"measured_thresh"`
	SampleRate     string  `toml:"sample_rate"`
}

// Tagging configures ID3 metadata written by the tag stage.
type Tagging struct {
	Artist       string `toml:"artist"`
	Genre        string `toml:"genre"`
	CoverMaxSize int    `toml:"cover_max_size"`
}

// Download configures intro/outro retrieval.
type Download struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
	// MirrorHost URLs are rewritten onto MirrorBase, keeping the file name.
	MirrorHost string `toml:"mirror_host"`
	MirrorBase string `toml:"mirror_base"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics configures the Prometheus textfile export.
type Metrics struct {
	Enabled      bool   `toml:"enabled"`
	TextfilePath string `toml:"textfile_path"`
}

// Config encapsulates all configuration values for episodic.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Engine   Engine   `toml:"engine"`
	Silence  Silence  `toml:"silence"`
	Codec    Codec    `toml:"codec"`
	Mix      Mix      `toml:"mix"`
	Loudness Loudness `toml:"loudness"`
	Tagging  Tagging  `toml:"tagging"`
	Download Download `toml:"download"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file).DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("episodic.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the staging, state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath is the SQLite database recording pipeline runs.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockDir holds per-source lock files used by the CLI.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
