package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

func tempCollection(t *testing.T) (string, *FS) {
	t.Helper()
	dir := t.TempDir()
	s, err := NewFS(dir, func(name string) bool { return strings.HasSuffix(name, ".md") })
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return dir, s
}

func write(t *testing.T, dir, rel, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRead(t *testing.T) {
	dir, s := tempCollection(t)
	write(t, dir, "note.md", "# Hello\nWorld\n")
	got, info, err := s.Read("note.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "# Hello\nWorld\n" {
		t.Errorf("content mismatch: got %q", got)
	}
	if info.Path != "note.md" || info.ModTime.IsZero() || info.Size != int64(len(got)) {
		t.Errorf("info = %+v", info)
	}
}

func TestRead_MissingIsNotExist(t *testing.T) {
	_, s := tempCollection(t)
	_, _, err := s.Read("gone.md")
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestList(t *testing.T) {
	dir, s := tempCollection(t)
	write(t, dir, "a.md", "a")
	write(t, dir, "sub/b.md", "b")
	write(t, dir, "readme.txt", "not md")
	write(t, dir, ".hidden.md", "h")
	write(t, dir, ".git/c.md", "c")

	items, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	sort.Strings(paths)
	if strings.Join(paths, ",") != "a.md,sub/b.md" {
		t.Errorf("paths = %v", paths)
	}
}

func TestList_UnreadableDirectoryIsSkipped(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir, s := tempCollection(t)
	write(t, dir, "a.md", "a")
	write(t, dir, "locked/b.md", "b")
	write(t, dir, "open/c.md", "c")
	locked := filepath.Join(dir, "locked")
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(locked, 0o755) })

	items, err := s.List()
	var partial *PartialListError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want *PartialListError", err)
	}
	if len(partial.Paths) != 1 || partial.Paths[0] != "locked" {
		t.Errorf("skipped = %v", partial.Paths)
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("err = %v, want fs.ErrPermission", err)
	}
	var paths []string
	for _, it := range items {
		paths = append(paths, it.Path)
	}
	sort.Strings(paths)
	if strings.Join(paths, ",") != "a.md,open/c.md" {
		t.Errorf("paths = %v", paths)
	}
}

func TestPartialListError_Covers(t *testing.T) {
	e := &PartialListError{Paths: []string{"sub", "x.md"}}
	for p, want := range map[string]bool{
		"sub":       true,
		"sub/a.md":  true,
		"sub2/a.md": false,
		"x.md":      true,
		"x.md.bak":  false,
		"a.md":      false,
	} {
		if got := e.Covers(p); got != want {
			t.Errorf("Covers(%q) = %v, want %v", p, got, want)
		}
	}
}

func TestList_MissingRootFails(t *testing.T) {
	dir, s := tempCollection(t)
	if err := os.Remove(dir); err != nil {
		t.Fatal(err)
	}
	_, err := s.List()
	var partial *PartialListError
	if err == nil || errors.As(err, &partial) {
		t.Errorf("err = %v, want a hard failure", err)
	}
}

func TestTraversalBlocked(t *testing.T) {
	_, s := tempCollection(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow", ""} {
		if _, _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
	}
}

func TestRel(t *testing.T) {
	dir, s := tempCollection(t)
	got, err := s.Rel(filepath.Join(dir, "sub", "x.md"))
	if err != nil || got != "sub/x.md" {
		t.Errorf("Rel(abs) = %q, %v", got, err)
	}
	got, err = s.Rel("sub/./x.md")
	if err != nil || got != "sub/x.md" {
		t.Errorf("Rel(rel) = %q, %v", got, err)
	}
	if _, err := s.Rel(filepath.Join(filepath.Dir(dir), "other", "x.md")); err == nil {
		t.Error("path outside root should be rejected")
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	if _, err := NewFS(filepath.Join(t.TempDir(), "missing"), nil); err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFS(f, nil); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestMatches(t *testing.T) {
	_, s := tempCollection(t)
	cases := map[string]bool{
		"a.md":          true,
		"sub/b.md":      true,
		"notes.txt":     false,
		".hidden.md":    false,
		".git/c.md":     false,
		"sub/.draft.md": false,
	}
	for p, want := range cases {
		if got := s.Matches(p); got != want {
			t.Errorf("Matches(%q) = %v, want %v", p, got, want)
		}
	}
}
