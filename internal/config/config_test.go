package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"episodic/internal/config"
)

func TestLoadDefaultsExpandPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "episodic", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if want := filepath.Join(tempHome, ".local", "share", "episodic", "staging"); cfg.Paths.StagingDir != want {
		t.Fatalf("staging dir = %q, want %q", cfg.Paths.StagingDir, want)
	}
	if cfg.Silence.NoiseDB != -60 || cfg.Silence.OverreadNoiseDB != -50 {
		t.Fatalf("unexpected noise floors: %+v", cfg.Silence)
	}
	if cfg.Engine.Quality != 3 || cfg.Codec.BitrateKbps != 64 {
		t.Fatalf("unexpected engine defaults: %+v %+v", cfg.Engine, cfg.Codec)
	}
	if cfg.Metrics.TextfilePath != filepath.Join(cfg.Paths.StateDir, "episodic.prom") {
		t.Fatalf("unexpected metrics path %q", cfg.Metrics.TextfilePath)
	}
	if cfg.LedgerPath() != filepath.Join(cfg.Paths.StateDir, "ledger.db") {
		t.Fatalf("unexpected ledger path %q", cfg.LedgerPath())
	}
}

func TestLoadCustomPath(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "episodic.toml")
	content := `
[paths]
staging_dir = "` + filepath.Join(dir, "staging") + `"

[silence]
mode = "remove-all"
remove_all_min_duration = 2.5

[mix]
overlay_seconds = 3

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("resolved=%q exists=%v", resolved, exists)
	}
	if cfg.Silence.Mode != config.SilenceModeRemoveAll {
		t.Fatalf("mode = %q", cfg.Silence.Mode)
	}
	if cfg.Silence.RemoveAllMinDuration != 2.5 || cfg.Mix.OverlaySeconds != 3 {
		t.Fatalf("unexpected values: %+v %+v", cfg.Silence, cfg.Mix)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("logging not normalized: %+v", cfg.Logging)
	}
	if cfg.Silence.NoiseDB != -60 {
		t.Fatalf("unset values must keep defaults, got %v", cfg.Silence.NoiseDB)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[silence]\nnoise = -10\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to fail")
	}
}

func TestEnvOverridesEngineBinaries(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EPISODIC_FFMPEG", "/opt/ffmpeg/bin/ffmpeg")
	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.FFmpegBinary != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg binary = %q", cfg.Engine.FFmpegBinary)
	}
	if cfg.Engine.FFprobeBinary != "ffprobe" {
		t.Fatalf("ffprobe binary = %q", cfg.Engine.FFprobeBinary)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	if parsed.Loudness.MeasuredThresh != -30.20 || parsed.Tagging.Genre != "Podcast" {
		t.Fatalf("sample drifted from defaults: %+v %+v", parsed.Loudness, parsed.Tagging)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"mode", func(c *config.Config) { c.Silence.Mode = "aggressive" }, "silence.mode"},
		{"noise", func(c *config.Config) { c.Silence.NoiseDB = 3 }, "noise_db"},
		{"overlay", func(c *config.Config) { c.Mix.OverlaySeconds = -1 }, "mix.overlay_seconds"},
		{"quality", func(c *config.Config) { c.Engine.Quality = 12 }, "engine.quality"},
		{"bitrate", func(c *config.Config) { c.Codec.BitrateKbps = 0 }, "codec.bitrate_kbps"},
		{"mirror", func(c *config.Config) { c.Download.MirrorHost = "https://a" }, "mirror_base"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"cover", func(c *config.Config) { c.Tagging.CoverMaxSize = 0 }, "cover_max_size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
