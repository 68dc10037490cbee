package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteMedia creates a placeholder media file at path, creating parent
// directories as needed. An empty body writes the file's base name so every
// fixture is distinguishable.
func WriteMedia(t testing.TB, path string, body string) string {
	t.Helper()

	if body == "" {
		body = filepath.Base(path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
