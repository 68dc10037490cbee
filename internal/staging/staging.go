// Package staging manages per-run working directories under paths.staging_dir.
//
// Each pipeline run copies its source into <staging_dir>/<run id>/ and works
// there, so intermediates never land next to the operator's originals. Failed
// runs leave their directory behind for inspection; `episodic clean` sweeps
// directories older than the configured age.
package staging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotConfigured reports an empty staging root.
var ErrNotConfigured = errors.New("staging directory not configured")

// RunDir creates and returns the working directory for runID.
func RunDir(root, runID string) (string, error) {
	dir, err := runPath(root, runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// Remove deletes the working directory for runID. A directory that is
// already gone is not an error.
func Remove(root, runID string) error {
	dir, err := runPath(root, runID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove run dir: %w", err)
	}
	return nil
}

func runPath(root, runID string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", ErrNotConfigured
	}
	id := strings.TrimSpace(runID)
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid run id %q", runID)
	}
	return filepath.Join(root, id), nil
}
