package preflight

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"episodic/internal/deps"
	"episodic/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckDiskSpace(t *testing.T) {
	dir := t.TempDir()
	if r := CheckDiskSpace("space", dir, 1); !r.Passed {
		t.Fatalf("expected pass with 1 byte minimum, got: %s", r.Detail)
	}
	if r := CheckDiskSpace("space", dir, 1<<62); r.Passed {
		t.Fatal("expected failure with impossible minimum")
	}
	if r := CheckDiskSpace("space", filepath.Join(dir, "missing"), 1); r.Passed {
		t.Fatal("expected failure for missing path")
	}
}

func TestDependencyResults(t *testing.T) {
	results := DependencyResults([]deps.Status{
		{Name: "FFmpeg", Available: true, Path: "/usr/bin/ffmpeg"},
		{Name: "FFprobe", Detail: `binary "ffprobe" not found`},
		{Name: "Extra", Optional: true, Detail: "missing"},
	})
	if !results[0].Passed || results[0].Detail != "/usr/bin/ffmpeg" {
		t.Fatalf("available result = %#v", results[0])
	}
	if results[1].Passed {
		t.Fatal("missing required dependency should fail")
	}
	if !results[2].Passed || results[2].Detail != "missing (optional)" {
		t.Fatalf("optional result = %#v", results[2])
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg)
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Name)
	}
	joined := strings.Join(names, ",")
	for _, want := range []string{"Staging directory", "State directory", "Log directory", "Staging free space", "FFmpeg", "FFprobe"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing check %q in %s", want, joined)
		}
	}
}

func TestRunAllMissingStaging(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Engine.FFprobeBinary = "clearly-not-present-ffprobe"

	failed := Failed(RunAll(context.Background(), cfg))
	var sawStaging, sawProbe bool
	for _, r := range failed {
		switch r.Name {
		case "Staging directory":
			sawStaging = true
		case "Staging free space":
			t.Fatal("free space should not be checked for a missing directory")
		case "FFprobe":
			sawProbe = true
		}
	}
	if !sawStaging || !sawProbe {
		t.Fatalf("failures = %#v", failed)
	}
}

func TestRunAllNilConfig(t *testing.T) {
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results")
	}
}
