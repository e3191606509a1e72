package search

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/starford/quarry/internal/apperr"
	"github.com/starford/quarry/internal/store"
)

// SnapshotFunc returns the current snapshot of a collection. It returns an
// error wrapping apperr.ErrNotFound or apperr.ErrUnavailable when the
// collection is gone.
type SnapshotFunc func(collection string) (*store.Snapshot, error)

// RegistrySnapshots adapts a store registry to SnapshotFunc.
func RegistrySnapshots(r *store.Registry) SnapshotFunc {
	return func(name string) (*store.Snapshot, error) {
		st, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		return st.Snapshot(), nil
	}
}

// Sync brings the docs of one collection in line with snap:
//   - served items whose identifier or checksum changed are upserted
//   - docs whose path is no longer served are deleted
func Sync(db *DB, snap *store.Snapshot, logger *slog.Logger) error {
	indexed, err := db.Indexed(snap.Collection)
	if err != nil {
		return err
	}

	served := make(map[string]struct{}, snap.Len())
	var upserts []Doc
	for _, it := range snap.Items() {
		served[it.Path] = struct{}{}
		if indexed[it.Path] == docKey(it.ID, it.Checksum) {
			continue
		}
		upserts = append(upserts, DocFromItem(it))
	}
	var stale []string
	for p := range indexed {
		if _, ok := served[p]; !ok {
			stale = append(stale, p)
		}
	}
	slices.Sort(stale)

	if len(upserts) > 0 {
		if err := db.Upsert(upserts...); err != nil {
			return err
		}
	}
	if len(stale) > 0 {
		if err := db.Delete(snap.Collection, stale...); err != nil {
			return err
		}
	}
	if len(upserts)+len(stale) > 0 {
		logger.Debug("search: synced",
			slog.String("collection", snap.Collection),
			slog.Int("upserted", len(upserts)),
			slog.Int("removed", len(stale)))
	}
	return nil
}

// Indexer keeps a DB current from store change notifications. Handle only
// marks a collection dirty; Run performs the sync off the store's writer
// path.
type Indexer struct {
	db        *DB
	snapshots SnapshotFunc
	logger    *slog.Logger

	mu    sync.Mutex
	dirty map[string]struct{}
	wake  chan struct{}
}

// NewIndexer returns an indexer over db.
func NewIndexer(db *DB, snapshots SnapshotFunc, logger *slog.Logger) *Indexer {
	return &Indexer{
		db:        db,
		snapshots: snapshots,
		logger:    logger,
		dirty:     make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// Handle is a store listener.
func (ix *Indexer) Handle(c store.Change) { ix.Mark(c.Collection) }

// Mark schedules collection for a sync.
func (ix *Indexer) Mark(collection string) {
	ix.mu.Lock()
	ix.dirty[collection] = struct{}{}
	ix.mu.Unlock()
	select {
	case ix.wake <- struct{}{}:
	default:
	}
}

// Run syncs dirty collections until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ix.wake:
			ix.Flush()
		}
	}
}

// Flush syncs every dirty collection now.
func (ix *Indexer) Flush() {
	ix.mu.Lock()
	names := make([]string, 0, len(ix.dirty))
	for name := range ix.dirty {
		names = append(names, name)
	}
	clear(ix.dirty)
	ix.mu.Unlock()
	slices.Sort(names)

	for _, name := range names {
		snap, err := ix.snapshots(name)
		switch {
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrUnavailable):
			if delErr := ix.db.DeleteCollection(name); delErr != nil {
				ix.logger.Warn("search: drop collection failed",
					slog.String("collection", name), slog.String("error", delErr.Error()))
			}
			continue
		case err != nil:
			ix.logger.Warn("search: snapshot failed", slog.String("collection", name), slog.String("error", err.Error()))
			continue
		}
		if err := Sync(ix.db, snap, ix.logger); err != nil {
			ix.logger.Warn("search: sync failed", slog.String("collection", name), slog.String("error", err.Error()))
		}
	}
}

// Search runs query against collection.
func (ix *Indexer) Search(collection, query string, limit int) ([]Hit, error) {
	return ix.db.Search(collection, query, limit)
}

// Prune drops the docs of every collection not in keep.
func (ix *Indexer) Prune(keep []string) error {
	have, err := ix.db.Collections()
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range have {
		if slices.Contains(keep, name) {
			continue
		}
		if err := ix.db.DeleteCollection(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
