package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/quarry/internal/apperr"
)

// Definition is one collection as loaded from configuration. Err is set
// when the collection's configuration could not be compiled; it is then
// registered as unavailable until a later Apply fixes it. Fingerprint
// identifies the configuration so unchanged collections are left alone on
// reload.
type Definition struct {
	Config      Config
	Fingerprint string
	Err         error
}

// Status describes one registered collection.
type Status struct {
	Name  string
	Store *Store // nil when unavailable
	Err   error
}

type registered struct {
	store       *Store
	fingerprint string
	err         error
}

// Registry maps collection names to stores. Collections are independent:
// a failure in one never affects another.
type Registry struct {
	logger *slog.Logger

	mu     sync.RWMutex
	stores map[string]*registered

	lmu       sync.RWMutex
	listeners []func(Change)
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, stores: make(map[string]*registered)}
}

// Subscribe registers fn for changes from every current and future store.
func (r *Registry) Subscribe(fn func(Change)) {
	r.lmu.Lock()
	r.listeners = append(r.listeners, fn)
	r.lmu.Unlock()
}

func (r *Registry) fanout(c Change) {
	r.lmu.RLock()
	ls := r.listeners
	r.lmu.RUnlock()
	for _, fn := range ls {
		fn(c)
	}
}

// Get returns the store for name. Unknown names wrap apperr.ErrNotFound;
// collections whose configuration failed wrap apperr.ErrUnavailable and
// the configuration error.
func (r *Registry) Get(name string) (*Store, error) {
	r.mu.RLock()
	reg, ok := r.stores[name]
	r.mu.RUnlock()
	switch {
	case !ok:
		return nil, fmt.Errorf("collection %q: %w", name, apperr.ErrNotFound)
	case reg.store == nil:
		return nil, fmt.Errorf("collection %q: %w: %w", name, apperr.ErrUnavailable, reg.err)
	}
	return reg.store, nil
}

// List returns every registered collection sorted by name.
func (r *Registry) List() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.stores))
	for _, name := range slices.Sorted(maps.Keys(r.stores)) {
		reg := r.stores[name]
		out = append(out, Status{Name: name, Store: reg.store, Err: reg.err})
	}
	return out
}

// Stores returns the available stores sorted by name.
func (r *Registry) Stores() []*Store {
	var out []*Store
	for _, st := range r.List() {
		if st.Store != nil {
			out = append(out, st.Store)
		}
	}
	return out
}

type job struct {
	name  string
	store *Store
	cfg   *Config // nil for the initial scan of a new store
}

// Apply reconciles the registry with a loaded configuration. New
// collections are created and scanned, changed ones are reconfigured (which
// supersedes any rebuild in flight), removed ones are dropped, and broken
// ones become unavailable. Scans of different collections run concurrently.
// The returned error joins every per-collection failure.
func (r *Registry) Apply(ctx context.Context, defs map[string]Definition) error {
	var jobs []job

	r.mu.Lock()
	for name, reg := range r.stores {
		if _, keep := defs[name]; !keep {
			if reg.store != nil {
				reg.store.Close()
			}
			delete(r.stores, name)
			r.logger.Info("registry: collection removed", slog.String("collection", name))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(defs)) {
		def := defs[name]
		reg := r.stores[name]
		if def.Err != nil {
			r.logger.Error("registry: collection unavailable",
				slog.String("collection", name), slog.String("error", def.Err.Error()))
			if reg != nil && reg.store != nil {
				reg.store.Close()
			}
			r.stores[name] = &registered{fingerprint: def.Fingerprint, err: def.Err}
			continue
		}
		if reg != nil && reg.store != nil {
			if reg.fingerprint == def.Fingerprint {
				continue
			}
			reg.fingerprint = def.Fingerprint
			cfg := def.Config
			jobs = append(jobs, job{name: name, store: reg.store, cfg: &cfg})
			continue
		}
		def.Config.Name = name
		st := New(def.Config, r.logger)
		st.Subscribe(r.fanout)
		r.stores[name] = &registered{store: st, fingerprint: def.Fingerprint}
		jobs = append(jobs, job{name: name, store: st})
	}
	r.mu.Unlock()

	var (
		g    errgroup.Group
		emu  sync.Mutex
		errs []error
	)
	for _, j := range jobs {
		g.Go(func() error {
			var err error
			if j.cfg != nil {
				err = j.store.Reconfigure(ctx, *j.cfg)
			} else {
				err = j.store.Rebuild(ctx)
			}
			if err == nil || errors.Is(err, ErrSuperseded) {
				return nil
			}
			r.logger.Error("registry: scan failed",
				slog.String("collection", j.name), slog.String("error", err.Error()))
			if j.cfg == nil {
				r.markUnavailable(j.name, j.store, err)
			}
			emu.Lock()
			errs = append(errs, fmt.Errorf("collection %q: %w", j.name, err))
			emu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// markUnavailable records a failed initial scan unless the entry was
// replaced in the meantime.
func (r *Registry) markUnavailable(name string, st *Store, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.stores[name]; ok && reg.store == st {
		st.Close()
		r.stores[name] = &registered{fingerprint: reg.fingerprint, err: err}
	}
}

// Close cancels in-flight rebuilds of every store.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.stores {
		if reg.store != nil {
			reg.store.Close()
		}
	}
}
