package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FS implements Provider backed by the local file system.
type FS struct {
	root  string // absolute path to collection directory
	match func(name string) bool
}

// NewFS creates a provider rooted at the given directory. match selects which
// file names count as content; nil accepts every file. The directory must
// already exist.
func NewFS(root string, match func(name string) bool) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	if match == nil {
		match = func(string) bool { return true }
	}
	return &FS{root: abs, match: match}, nil
}

// Root returns the absolute collection directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects any result
// that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("storage: empty path")
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes collection root: %s", rel)
	}
	return abs, nil
}

// Rel maps an absolute path under the root, or an already relative path, to
// the slash-separated key used by List.
func (f *FS) Rel(p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return "", fmt.Errorf("storage: rel: %w", err)
		}
		p = rel
	}
	if _, err := f.safePath(p); err != nil {
		return "", err
	}
	return filepath.ToSlash(filepath.Clean(p)), nil
}

// Matches reports whether rel names a content file: no hidden path
// segment and a name accepted by the match function.
func (f *FS) Matches(rel string) bool {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, part := range parts {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return f.match(parts[len(parts)-1])
}

// List walks the root and returns every matching file. Hidden files and
// directories (leading dot) are skipped. Subdirectories and files that
// cannot be read do not stop the walk: the rest is returned together with
// a *PartialListError naming them. Only an unreadable root fails outright.
func (f *FS) List() ([]FileInfo, error) {
	var (
		out     []FileInfo
		skipped []string
		errs    []error
	)
	skip := func(p string, err error) {
		rel, _ := filepath.Rel(f.root, p)
		skipped = append(skipped, filepath.ToSlash(rel))
		errs = append(errs, err)
	}
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == f.root {
				return walkErr
			}
			skip(p, walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if p != f.root && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !f.match(name) {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted after its directory was read.
			return nil
		}
		if err != nil {
			skip(p, err)
			return nil
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, FileInfo{
			Path:    filepath.ToSlash(rel),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	if len(skipped) > 0 {
		return out, &PartialListError{Paths: skipped, Err: errors.Join(errs...)}
	}
	return out, nil
}

// PartialListError reports the paths List could not read. Paths are
// relative to the root; a directory stands for everything below it.
type PartialListError struct {
	Paths []string
	Err   error
}

func (e *PartialListError) Error() string {
	return fmt.Sprintf("storage: list skipped %d path(s): %v", len(e.Paths), e.Err)
}

func (e *PartialListError) Unwrap() error { return e.Err }

// Covers reports whether p is one of the skipped paths or lies below one.
func (e *PartialListError) Covers(p string) bool {
	for _, s := range e.Paths {
		if p == s || strings.HasPrefix(p, s+"/") {
			return true
		}
	}
	return false
}

// Read returns the raw bytes of a collection file.
func (f *FS) Read(path string) ([]byte, FileInfo, error) {
	abs, err := f.safePath(path)
	if err != nil {
		return nil, FileInfo{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("storage: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, FileInfo{}, fmt.Errorf("storage: %s is a directory", path)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, FileInfo{}, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, FileInfo{
		Path:    filepath.ToSlash(filepath.Clean(filepath.FromSlash(path))),
		ModTime: info.ModTime(),
		Size:    int64(len(data)),
	}, nil
}
