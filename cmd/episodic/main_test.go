package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"episodic/internal/config"
	"episodic/internal/services"
	"episodic/internal/testsupport"
)

const ffprobeStub = `#!/bin/sh
cat <<'JSON'
{"streams":[{"codec_type":"audio","codec_name":"mp3","channels":2}],"format":{"duration":"60"}}
JSON
`

// ffmpegStub reports one leading silence to silencedetect and creates the
// output file named by its last argument.
const ffmpegStub = `#!/bin/sh
for arg; do last="$arg"; done
case "$*" in
*-version*) echo "ffmpeg version 6.1-stub"; exit 0 ;;
*silencedetect*) printf '[silencedetect @ 0x1] silence_start: 0\n[silencedetect @ 0x1] silence_end: 1.5 | silence_duration: 1.5\n' >&2 ;;
esac
[ "$last" = "-" ] || : > "$last"
exit 0
`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))
	t.Setenv("EPISODIC_FFMPEG", "")
	t.Setenv("EPISODIC_FFPROBE", "")

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfg.Engine.FFmpegBinary = writeScript(t, binDir, "ffmpeg", ffmpegStub)
	cfg.Engine.FFprobeBinary = writeScript(t, binDir, "ffprobe", ffprobeStub)
	cfg.Metrics.Enabled = true

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base}
}

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
staging_dir = %q
state_dir = %q
log_dir = %q

[engine]
ffmpeg_binary = %q
ffprobe_binary = %q

[logging]
format = "json"
level = "error"

[metrics]
enabled = %t
textfile_path = %q
`,
		cfg.Paths.StagingDir,
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Engine.FFmpegBinary,
		cfg.Engine.FFprobeBinary,
		cfg.Metrics.Enabled,
		cfg.Metrics.TextfilePath,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func writeEpisode(t *testing.T, env *cliTestEnv, name string) string {
	t.Helper()
	return testsupport.WriteMedia(t, filepath.Join(env.baseDir, name), "episode")
}

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite existing config")
	}
	if _, _, err := runCLI(t, []string{"config", "validate"}, target); err != nil {
		t.Fatalf("sample config should validate: %v", err)
	}
}

func TestPrepareRecordsRunAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeEpisode(t, env, "show-episode-12.mp3")
	dest := filepath.Join(env.baseDir, "out", "final.mp3")

	out, _, err := runCLI(t, []string{"prepare", source, "--output", dest, "--skip-preflight"}, env.configPath)
	if err != nil {
		t.Fatalf("prepare: %v\n%s", err, out)
	}
	requireContains(t, out, "complete: "+dest)
	requireContains(t, out, "trim")
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected output at %s: %v", dest, err)
	}
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("source should be preserved: %v", err)
	}
	if _, err := os.Stat(env.cfg.Metrics.TextfilePath); err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "completed")
	requireContains(t, out, "show-episode-12.mp3")

	out, _, err = runCLI(t, []string{"history", "--json", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("history --json: %v", err)
	}
	requireContains(t, out, "[]")
}

func TestPrepareRejectsMissingCover(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeEpisode(t, env, "episode.mp3")
	missingCover := filepath.Join(env.baseDir, "missing.png")

	_, _, err := runCLI(t, []string{"prepare", source, "--cover", missingCover, "--skip-preflight"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for missing cover")
	}
	requireContains(t, err.Error(), "missing.png")
}

func TestPrepareRejectsBadMode(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeEpisode(t, env, "episode.mp3")
	_, _, err := runCLI(t, []string{"prepare", source, "--mode", "aggressive", "--skip-preflight"}, env.configPath)
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "--mode") {
		t.Fatalf("expected mode validation error, got %v", err)
	}
}

func TestDetectAndPlan(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeEpisode(t, env, "episode.mp3")

	out, _, err := runCLI(t, []string{"detect", source, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	requireContains(t, out, `"start": 0`)
	requireContains(t, out, `"end": 1.5`)

	out, _, err = runCLI(t, []string{"plan", source, "--intro-seconds", "8", "--overlay", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	requireContains(t, out, "atrim=start=1.5")
	requireContains(t, out, "amix=2")
}

func TestTrimKeepPreservesInput(t *testing.T) {
	env := setupCLITestEnv(t)
	source := writeEpisode(t, env, "episode.mp3")

	out, _, err := runCLI(t, []string{"trim", source, "--keep"}, env.configPath)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	requireContains(t, out, "episode_trimmed.mp3")
	if _, err := os.Stat(source); err != nil {
		t.Fatalf("--keep should restore the input: %v", err)
	}
	if _, err := os.Stat(source + ".keep"); !os.IsNotExist(err) {
		t.Fatal("backup should be removed")
	}
}

func TestDoctorReportsChecks(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, _ := runCLI(t, []string{"doctor"}, env.configPath)
	requireContains(t, out, "Staging directory")
	requireContains(t, out, "FFmpeg")
	requireContains(t, out, "ffmpeg version 6.1-stub")
	requireContains(t, out, "Run ledger")
}

func TestCleanRemovesStaleStaging(t *testing.T) {
	env := setupCLITestEnv(t)
	stale := filepath.Join(env.cfg.Paths.StagingDir, "abandoned-run")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, []string{"clean", "--list"}, env.configPath)
	if err != nil {
		t.Fatalf("clean --list: %v", err)
	}
	requireContains(t, out, "abandoned-run")

	out, _, err = runCLI(t, []string{"clean", "--max-age-hours", "0"}, env.configPath)
	if err != nil {
		t.Fatalf("clean: %v", err)
	}
	requireContains(t, out, "1 directories removed")
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale staging directory should be removed")
	}
}
