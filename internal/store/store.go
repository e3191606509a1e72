// Package store owns the in-memory state of content collections: validated
// items, identifier and equality indexes, and the schema they were checked
// against.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quarry/internal/apperr"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/storage"
	"github.com/starford/quarry/internal/validate"
)

// Store is one collection. Reads never lock: they load the current
// snapshot. Writers (full rebuilds and targeted rescans) are serialized and
// publish a new snapshot copy-on-write. A full rebuild scans without
// holding the writer lock, so targeted rescans keep flowing while it runs.
type Store struct {
	name   string
	logger *slog.Logger

	mu         sync.Mutex // serializes writers
	cfg        Config     // desired config; snapshots carry the one they were built with
	cfgVersion uint64
	gen        uint64
	cancel     context.CancelFunc
	dirty      map[string]struct{} // paths rescanned during an in-flight rebuild

	snap atomic.Pointer[snapshotState]

	lmu       sync.RWMutex
	listeners []func(Change)
}

// snapshotState pairs a published snapshot with the config that built it.
type snapshotState struct {
	*Snapshot
	cfg        Config
	cfgVersion uint64
}

// New creates an empty store. Call Rebuild to perform the initial scan.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	s := &Store{
		name:       cfg.Name,
		logger:     logger.With(slog.String("collection", cfg.Name)),
		cfg:        cfg,
		cfgVersion: 1,
	}
	s.snap.Store(&snapshotState{Snapshot: emptySnapshot(cfg.Name, cfg.Schema), cfg: cfg, cfgVersion: 1})
	return s
}

// Name returns the collection name.
func (s *Store) Name() string { return s.name }

// Source returns the file source of the current configuration.
func (s *Store) Source() storage.Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Source
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot { return s.snap.Load().Snapshot }

// GetAll returns every served item in path order.
func (s *Store) GetAll() []*models.Item { return s.Snapshot().Items() }

// GetByIdentifier returns the served item with identifier id.
func (s *Store) GetByIdentifier(id string) (*models.Item, error) {
	it, ok := s.Snapshot().Get(id)
	if !ok {
		return nil, fmt.Errorf("item %q in %s: %w", id, s.name, apperr.ErrNotFound)
	}
	return it, nil
}

// Invalid returns the items excluded from queries, with their errors.
func (s *Store) Invalid() []*models.Item { return s.Snapshot().Invalid() }

// Validate checks metadata against the schema of the current snapshot.
func (s *Store) Validate(meta models.Metadata) models.ValidationResult {
	return validate.Validate(s.Snapshot().Schema, meta)
}

// Query parses p against the current snapshot's schema and runs it on the
// same snapshot.
func (s *Store) Query(p query.Params, opts query.Options) (*query.Query, query.Result, error) {
	snap := s.Snapshot()
	q, err := query.Build(p, snap.Schema, opts)
	if err != nil {
		return nil, query.Result{}, err
	}
	return q, snap.Query(q), nil
}

// Subscribe registers fn to be called after every published change.
// Listeners run on the writer's goroutine while writes are serialized, so
// they must be quick and must not call Invalidate, Rebuild or Reconfigure.
func (s *Store) Subscribe(fn func(Change)) {
	s.lmu.Lock()
	s.listeners = append(s.listeners, fn)
	s.lmu.Unlock()
}

func (s *Store) notify(c Change) {
	s.lmu.RLock()
	ls := s.listeners
	s.lmu.RUnlock()
	for _, fn := range ls {
		fn(c)
	}
}

// Invalidate rescans the given scope: the whole collection or one file.
func (s *Store) Invalidate(ctx context.Context, scope Scope) error {
	if scope.IsAll() {
		return s.Rebuild(ctx)
	}
	return s.rescan(ctx, scope.Path)
}

// Rebuild rescans every file and atomically swaps in the result. A newer
// rebuild cancels an in-flight one, which then returns ErrSuperseded.
func (s *Store) Rebuild(ctx context.Context) error { return s.rebuild(ctx, nil) }

// Reconfigure installs a new config (typically a new schema) and rebuilds.
// Every item is revalidated; nothing is reused from the old config.
func (s *Store) Reconfigure(ctx context.Context, cfg Config) error {
	cfg.Name = s.name
	return s.rebuild(ctx, &cfg)
}

// Close cancels an in-flight rebuild.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.dirty = nil
}

func (s *Store) rebuild(ctx context.Context, newCfg *Config) error {
	start := time.Now()

	s.mu.Lock()
	if newCfg != nil {
		s.cfg = newCfg.withDefaults()
		s.cfgVersion++
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen, cfg, cfgVersion := s.gen, s.cfg, s.cfgVersion
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.dirty = make(map[string]struct{})
	prev := s.snap.Load()
	s.mu.Unlock()
	defer cancel()

	entries, scanErr := s.scanAll(ctx, cfg, cfgVersion, prev)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.logger.Info("store: rebuild superseded")
		return ErrSuperseded
	}
	s.cancel = nil
	dirty := s.dirty
	s.dirty = nil
	if scanErr != nil {
		return scanErr
	}

	// Paths rescanned while the scan ran may have been read before their
	// latest change; read them again under the writer lock.
	cur := s.snap.Load()
	for p := range dirty {
		if _, _, err := s.applyPath(ctx, cfg, cfgVersion, entries, p); err != nil && ctx.Err() != nil {
			return err
		}
	}

	next := assemble(cur.Snapshot, entries, cur.Version+1, cfg.Schema, time.Now().UTC())
	next.RebuildID = uuid.NewString()
	s.publish(next, cfg, cfgVersion)

	elapsed := time.Since(start)
	s.logger.Info("store: rebuild done",
		slog.String("rebuild_id", next.RebuildID),
		slog.Int("valid", len(next.items)),
		slog.Int("invalid", len(next.invalid)),
		slog.Duration("elapsed", elapsed))
	s.logInvalid(next)
	s.notify(Change{
		Collection: s.name,
		Kind:       ChangeRebuilt,
		Version:    next.Version,
		RebuildID:  next.RebuildID,
		Duration:   elapsed,
		Valid:      len(next.items),
		Invalid:    len(next.invalid),
	})
	return nil
}

// scanAll reads every listed file with bounded parallelism. Files that
// cannot be read keep their previous entry.
func (s *Store) scanAll(ctx context.Context, cfg Config, cfgVersion uint64, prev *snapshotState) (map[string]*entry, error) {
	files, err := cfg.Source.List()
	var partial *storage.PartialListError
	switch {
	case errors.As(err, &partial):
		s.logger.Warn("store: some paths could not be listed, keeping their previous items",
			slog.Any("paths", partial.Paths), slog.String("error", partial.Err.Error()))
	case err != nil:
		return nil, fmt.Errorf("store: list %s: %w", s.name, err)
	}

	var mu sync.Mutex
	entries := make(map[string]*entry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			old := prev.entries[f.Path]
			e, err := scanFile(gctx, cfg, cfgVersion, old, f.Path)
			switch {
			case err == nil:
			case gctx.Err() != nil:
				return gctx.Err()
			case errors.Is(err, fs.ErrNotExist):
				return nil
			default:
				s.logger.Warn("store: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				if old == nil {
					return nil
				}
				e = retain(cfg, cfgVersion, old)
			}
			mu.Lock()
			entries[f.Path] = e
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if partial != nil {
		for p, old := range prev.entries {
			if _, ok := entries[p]; !ok && partial.Covers(p) {
				entries[p] = retain(cfg, cfgVersion, old)
			}
		}
	}
	return entries, nil
}

// applyPath rescans p into entries and reports the paths removed and
// whether p was added or changed. A transient read error leaves entries
// untouched and is returned.
func (s *Store) applyPath(ctx context.Context, cfg Config, cfgVersion uint64, entries map[string]*entry, p string) (removed []string, changed bool, err error) {
	if !cfg.Source.Matches(p) {
		// Directories and non-content files only matter for removals.
		if _, _, err := cfg.Source.Read(p); errors.Is(err, fs.ErrNotExist) {
			return removeTree(entries, p), false, nil
		}
		return nil, false, nil
	}
	old := entries[p]
	e, err := scanFile(ctx, cfg, cfgVersion, old, p)
	switch {
	case err == nil:
		if e == old {
			return nil, false, nil
		}
		entries[p] = e
		return nil, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return removeTree(entries, p), false, nil
	case ctx.Err() != nil:
		return nil, false, ctx.Err()
	default:
		s.logger.Warn("store: read failed, keeping previous version",
			slog.String("path", p), slog.String("error", err.Error()))
		return nil, false, err
	}
}

// removeTree deletes p and, when p was a directory, every entry below it.
func removeTree(entries map[string]*entry, p string) []string {
	var removed []string
	if _, ok := entries[p]; ok {
		delete(entries, p)
		removed = append(removed, p)
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	for k := range entries {
		if strings.HasPrefix(k, prefix) {
			delete(entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// rescan re-reads one file and publishes the result. Other items keep
// their objects; only p's entry, or the entries below a removed
// directory, change.
func (s *Store) rescan(ctx context.Context, path string) error {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.snap.Load()
	p, err := cur.cfg.Source.Rel(path)
	if err != nil {
		return fmt.Errorf("store: %s: %w", s.name, err)
	}
	if s.dirty != nil {
		s.dirty[p] = struct{}{}
	}

	entries := maps.Clone(cur.entries)
	removed, changed, err := s.applyPath(ctx, cur.cfg, cur.cfgVersion, entries, p)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return nil
	}
	if !changed && len(removed) == 0 {
		return nil
	}

	next := assemble(cur.Snapshot, entries, cur.Version+1, cur.Schema, time.Now().UTC())
	s.publish(next, cur.cfg, cur.cfgVersion)
	elapsed := time.Since(start)

	for _, k := range removed {
		s.emitItemChange(next, ChangeDeleted, k, cur.entries[k].final.ID, elapsed)
	}
	if changed {
		final := next.entries[p].final
		kind := ChangeUpdated
		if _, existed := cur.entries[p]; !existed {
			kind = ChangeCreated
		}
		if !final.Valid() {
			s.logger.Debug("store: item invalid", slog.String("path", p), slog.Int("errors", len(final.Validation.Errors)))
		}
		s.emitItemChange(next, kind, p, final.ID, elapsed)
	}
	return nil
}

func (s *Store) emitItemChange(next *Snapshot, kind ChangeKind, p, id string, elapsed time.Duration) {
	s.logger.Debug("store: item "+string(kind), slog.String("path", p), slog.String("id", id))
	s.notify(Change{
		Collection: s.name,
		Kind:       kind,
		Path:       p,
		ID:         id,
		Version:    next.Version,
		RebuildID:  next.RebuildID,
		Duration:   elapsed,
		Valid:      len(next.items),
		Invalid:    len(next.invalid),
	})
}

func (s *Store) publish(next *Snapshot, cfg Config, cfgVersion uint64) {
	s.snap.Store(&snapshotState{Snapshot: next, cfg: cfg, cfgVersion: cfgVersion})
}

func (s *Store) logInvalid(next *Snapshot) {
	for _, it := range next.invalid {
		if it.Version != next.Version {
			continue
		}
		for _, e := range it.Validation.Errors {
			s.logger.Debug("store: item invalid",
				slog.String("path", it.Path),
				slog.String("field", e.Field),
				slog.String("kind", string(e.Kind)),
				slog.String("message", e.Message))
		}
	}
}
