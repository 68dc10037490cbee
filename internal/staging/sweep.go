package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"episodic/internal/logging"
)

// RunInfo describes one run directory.
type RunInfo struct {
	ID      string
	Path    string
	ModTime time.Time
	Files   int
	Bytes   int64
}

// Age reports how long ago the directory was last modified.
func (r RunInfo) Age(now time.Time) time.Duration {
	return now.Sub(r.ModTime)
}

// List returns the run directories under root, oldest first. A missing root
// yields no runs.
func List(root string) ([]RunInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []RunInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		run := RunInfo{ID: entry.Name(), Path: filepath.Join(root, entry.Name()), ModTime: info.ModTime()}
		run.Files, run.Bytes = usage(run.Path)
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ModTime.Before(runs[j].ModTime) })
	return runs, nil
}

// usage counts regular files and their bytes, skipping unreadable entries.
func usage(dir string) (files int, bytes int64) {
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			files++
			bytes += info.Size()
		}
		return nil
	})
	return files, bytes
}

// SweepOptions controls Sweep.
type SweepOptions struct {
	Root   string
	MaxAge time.Duration
	// Keep names run IDs that are never removed, typically runs still in progress.
	Keep   map[string]struct{}
	Now    func() time.Time
	Logger *slog.Logger
}

// SweepFailure pairs a directory with the error that kept it on disk.
type SweepFailure struct {
	Path string
	Err  error
}

// SweepReport is the outcome of Sweep.
type SweepReport struct {
	Removed   []RunInfo
	Failed    []SweepFailure
	Reclaimed int64
}

// Sweep removes run directories older than MaxAge.
func Sweep(ctx context.Context, opts SweepOptions) SweepReport {
	var report SweepReport
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	runs, err := List(opts.Root)
	if err != nil {
		report.Failed = append(report.Failed, SweepFailure{Path: opts.Root, Err: err})
		return report
	}
	cutoff := now().Add(-opts.MaxAge)
	for _, run := range runs {
		if ctx.Err() != nil {
			break
		}
		if _, active := opts.Keep[run.ID]; active {
			continue
		}
		if !run.ModTime.Before(cutoff) {
			// List is oldest first, so every later run is newer still.
			break
		}
		if err := os.RemoveAll(run.Path); err != nil {
			report.Failed = append(report.Failed, SweepFailure{Path: run.Path, Err: err})
			logging.WarnWithContext(logger, "stale staging directory not removed", "staging_cleanup_failed",
				logging.String("staging_path", run.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		report.Removed = append(report.Removed, run)
		report.Reclaimed += run.Bytes
		logger.Info("removed stale staging directory",
			logging.String("staging_path", run.Path),
			logging.Duration("age", run.Age(now())),
			logging.Int64("bytes", run.Bytes),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return report
}
