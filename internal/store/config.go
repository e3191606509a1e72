package store

import (
	"errors"
	"time"

	"github.com/starford/quarry/internal/ident"
	"github.com/starford/quarry/internal/schema"
	"github.com/starford/quarry/internal/storage"
)

// Defaults applied by New when Config fields are zero.
const (
	DefaultWorkers    = 4
	DefaultItemBudget = 5 * time.Second
)

// ErrSuperseded reports a full rebuild that was cancelled or overtaken by a
// newer one before it could be swapped in.
var ErrSuperseded = errors.New("store: rebuild superseded")

// Config describes one collection.
type Config struct {
	Name      string
	Schema    *schema.Schema
	Source    storage.Provider
	SlugField string
	Ident     ident.Options
	// Workers bounds concurrent file scans during a full rebuild.
	Workers int
	// ItemBudget bounds the time spent reading, parsing and validating one
	// file. A file over budget is recorded as invalid and the scan continues.
	ItemBudget time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.ItemBudget <= 0 {
		c.ItemBudget = DefaultItemBudget
	}
	return c
}

// Scope selects what Invalidate rescans. The zero value means the whole
// collection.
type Scope struct {
	Path string
}

// All is the full-rebuild scope.
var All = Scope{}

// PathScope returns a targeted scope for one file, relative to the
// collection folder.
func PathScope(path string) Scope { return Scope{Path: path} }

// IsAll reports whether the scope is a full rebuild.
func (s Scope) IsAll() bool { return s.Path == "" }

func (s Scope) String() string {
	if s.IsAll() {
		return "all"
	}
	return "path"
}

// ChangeKind classifies a published change.
type ChangeKind string

// Change kinds.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
	ChangeRebuilt ChangeKind = "rebuilt"
)

// Change is delivered to listeners after every snapshot swap.
type Change struct {
	Collection string
	Kind       ChangeKind
	Path       string // empty for rebuilds
	ID         string
	Version    uint64
	RebuildID  string
	Duration   time.Duration
	Valid      int
	Invalid    int
}
