// Package testutil provides shared test helpers for setting up collection
// folders and schemas.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/quarry/internal/parser"
	"github.com/starford/quarry/internal/schema"
	"github.com/starford/quarry/internal/storage"
)

// TestCollection creates a temporary collection folder with a
// storage.Provider that accepts the supported content extensions.
func TestCollection(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fsys, err := storage.NewFS(dir, parser.Supported)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fsys
}

// WriteFile writes content to rel under dir, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// RemoveFile deletes rel under dir.
func RemoveFile(t *testing.T, dir, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

// Schema compiles a schema from YAML or fails the test.
func Schema(t *testing.T, y string) *schema.Schema {
	t.Helper()
	s, err := schema.ParseYAML([]byte(y))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
