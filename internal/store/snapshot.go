package store

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/schema"
)

// entry is the per-path state of a snapshot. base carries the item's own
// validation; final is what readers see, base plus a duplicate-identifier
// error when another path owns the identifier. Entries are immutable and
// shared between snapshots.
type entry struct {
	base       *models.Item
	final      *models.Item
	dupOf      string // owning path when final is a duplicate
	cfgVersion uint64
}

// Snapshot is an immutable point-in-time view of a collection. Readers
// holding a snapshot keep seeing it after newer ones are published.
type Snapshot struct {
	Collection string
	Version    uint64
	RebuildID  string
	Schema     *schema.Schema
	BuiltAt    time.Time

	entries map[string]*entry
	owners  map[string]string // identifier -> owning path
	items   []*models.Item    // valid, by path
	invalid []*models.Item    // invalid, by path
	byID    map[string]*models.Item
	indexes *indexSet
}

func emptySnapshot(name string, s *schema.Schema) *Snapshot {
	return &Snapshot{
		Collection: name,
		Schema:     s,
		entries:    map[string]*entry{},
		owners:     map[string]string{},
		byID:       map[string]*models.Item{},
		indexes:    newIndexSet(),
	}
}

// Items returns the served items in path order.
func (s *Snapshot) Items() []*models.Item { return slices.Clone(s.items) }

// Invalid returns the excluded items in path order.
func (s *Snapshot) Invalid() []*models.Item { return slices.Clone(s.invalid) }

// Len returns the number of served items.
func (s *Snapshot) Len() int { return len(s.items) }

// Get returns the served item with the given identifier.
func (s *Snapshot) Get(id string) (*models.Item, bool) {
	it, ok := s.byID[id]
	return it, ok
}

// ByPath returns the item scanned from path, valid or not.
func (s *Snapshot) ByPath(path string) (*models.Item, bool) {
	e, ok := s.entries[path]
	if !ok {
		return nil, false
	}
	return e.final, true
}

// Query runs q against the served items. Exact-match conjuncts narrow the
// candidates through lazily built equality indexes before the executor
// applies the full filter.
func (s *Snapshot) Query(q *query.Query) query.Result {
	candidates := s.items
	if q.Filter != nil {
		var best []int
		narrowed := false
		for _, term := range query.EqualityTerms(q.Filter) {
			idx := s.indexes.get(term.Field.Name, term.Kind, term.Array, s.items)
			posting := idx[term.Key()]
			if !narrowed || len(posting) < len(best) {
				best, narrowed = posting, true
			}
		}
		if narrowed {
			candidates = make([]*models.Item, len(best))
			for i, pos := range best {
				candidates[i] = s.items[pos]
			}
		}
	}
	return query.Execute(q, candidates)
}

// assemble builds the next snapshot from a complete path -> entry map.
// Identifier ownership is recomputed here among items that are otherwise
// valid: the path that owned an identifier in prev keeps it, otherwise the
// first path in order wins. Items not carried over from prev are stamped
// with version.
func assemble(prev *Snapshot, entries map[string]*entry, version uint64, sch *schema.Schema, now time.Time) *Snapshot {
	next := &Snapshot{
		Collection: prev.Collection,
		Version:    version,
		RebuildID:  prev.RebuildID,
		Schema:     sch,
		BuiltAt:    now,
		entries:    make(map[string]*entry, len(entries)),
		owners:     make(map[string]string, len(entries)),
		byID:       make(map[string]*models.Item, len(entries)),
		indexes:    newIndexSet(),
	}
	paths := slices.Sorted(maps.Keys(entries))

	for id, p := range prev.owners {
		if e, ok := entries[p]; ok && e.base.ID == id && e.base.Valid() {
			next.owners[id] = p
		}
	}
	for _, p := range paths {
		e := entries[p]
		id := e.base.ID
		if id == "" || !e.base.Valid() {
			continue
		}
		if _, taken := next.owners[id]; !taken {
			next.owners[id] = p
		}
	}

	for _, p := range paths {
		e := entries[p]
		id := e.base.ID
		owner, owned := next.owners[id]
		switch {
		case id == "" || !owned || owner == p:
			if e.final != e.base {
				e = &entry{base: e.base, final: e.base, cfgVersion: e.cfgVersion}
			}
		case e.dupOf != owner:
			dup := *e.base
			dup.Version = 0
			dup.Validation = e.base.Validation.WithErrors(models.ValidationError{
				Kind:    models.KindDuplicateIdentifier,
				Message: fmt.Sprintf("identifier %q is already used by %s", id, owner),
				Value:   id,
			})
			e = &entry{base: e.base, final: &dup, dupOf: owner, cfgVersion: e.cfgVersion}
		}
		if e.final.Version == 0 {
			e.final.Version = version
		}
		next.entries[p] = e
		if e.final.Valid() {
			next.items = append(next.items, e.final)
			next.byID[id] = e.final
		} else {
			next.invalid = append(next.invalid, e.final)
		}
	}
	return next
}
