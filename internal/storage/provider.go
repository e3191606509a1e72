// Package storage reads content files from a collection folder.
package storage

import "time"

// FileInfo describes one content file. Path is relative to the collection
// root and uses forward slashes.
type FileInfo struct {
	Path    string
	ModTime time.Time
	Size    int64
}

// Provider is the read-side file collaborator of a collection store.
type Provider interface {
	// Root returns the absolute collection folder.
	Root() string
	// List returns every matching content file under the root. A
	// *PartialListError accompanies a listing that skipped unreadable paths.
	List() ([]FileInfo, error)
	// Read returns the raw bytes and current info of the file at path.
	Read(path string) ([]byte, FileInfo, error)
	// Rel converts an absolute or relative path to the provider's key form.
	Rel(path string) (string, error)
	// Matches reports whether a relative path would be returned by List.
	Matches(path string) bool
}
