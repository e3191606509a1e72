package store

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/schema"
)

// eqIndex maps an equality key to ascending positions in Snapshot.items.
type eqIndex map[string][]int

// indexSet holds the derived equality indexes of one snapshot. Indexes are
// built on first use; concurrent first uses share one build.
type indexSet struct {
	mu    sync.RWMutex
	byKey map[string]eqIndex
	group singleflight.Group
}

func newIndexSet() *indexSet {
	return &indexSet{byKey: make(map[string]eqIndex)}
}

func (x *indexSet) get(field string, kind schema.Kind, array bool, items []*models.Item) eqIndex {
	key := field + "/" + strconv.Itoa(int(kind)) + "/" + strconv.FormatBool(array)
	x.mu.RLock()
	idx, ok := x.byKey[key]
	x.mu.RUnlock()
	if ok {
		return idx
	}
	v, _, _ := x.group.Do(key, func() (any, error) {
		x.mu.RLock()
		idx, ok := x.byKey[key]
		x.mu.RUnlock()
		if ok {
			return idx, nil
		}
		idx = buildIndex(field, kind, array, items)
		x.mu.Lock()
		x.byKey[key] = idx
		x.mu.Unlock()
		return idx, nil
	})
	return v.(eqIndex)
}

// size reports how many indexes have been built.
func (x *indexSet) size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byKey)
}

func buildIndex(field string, kind schema.Kind, array bool, items []*models.Item) eqIndex {
	idx := make(eqIndex)
	for pos, it := range items {
		raw, ok := it.Metadata.Get(field)
		if !ok || raw == nil {
			continue
		}
		if !array {
			if k, ok := query.Key(kind, raw); ok {
				idx[k] = append(idx[k], pos)
			}
			continue
		}
		elems, ok := raw.([]any)
		if !ok {
			continue
		}
		seen := make(map[string]bool, len(elems))
		for _, el := range elems {
			k, ok := query.Key(kind, el)
			if !ok || seen[k] {
				continue
			}
			seen[k] = true
			idx[k] = append(idx[k], pos)
		}
	}
	return idx
}
