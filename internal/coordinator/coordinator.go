// Package coordinator turns raw file change notifications into debounced
// store invalidations.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/quarry/internal/store"
)

// DefaultWindow is the debounce window used when Options.Window is zero.
const DefaultWindow = 300 * time.Millisecond

// Kind classifies a change notification.
type Kind uint8

// Event kinds.
const (
	Created Kind = iota + 1
	Written
	Removed
	// Rescan asks for a full rebuild of one collection, e.g. after the
	// watch source dropped events.
	Rescan
	// ConfigChanged reports a change to the configuration file. Collection
	// and Path are ignored.
	ConfigChanged
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Written:
		return "written"
	case Removed:
		return "removed"
	case Rescan:
		return "rescan"
	case ConfigChanged:
		return "config"
	}
	return "unknown"
}

// Event is one change notification.
type Event struct {
	Collection string
	Path       string
	Kind       Kind
}

// Invalidator is the store side of the coordinator.
type Invalidator interface {
	Invalidate(ctx context.Context, scope store.Scope) error
}

// Lookup resolves a collection name to its store.
type Lookup func(collection string) (Invalidator, error)

// RegistryLookup adapts a store registry to Lookup.
func RegistryLookup(r *store.Registry) Lookup {
	return func(name string) (Invalidator, error) {
		st, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// Options configure a Coordinator.
type Options struct {
	Window time.Duration
	Logger *slog.Logger
	// OnInvalidate is called after every debounced invalidation or reload.
	OnInvalidate func(ev Event, err error)
}

type key struct {
	collection string
	path       string
}

type pending struct {
	token uint64
	timer *time.Timer
}

// Coordinator consumes events from its channel and debounces them per
// (collection, path): a burst of events for one path collapses into one
// invalidation fired once the window passes without another event for that
// path. Paths never wait on each other. Configuration changes are debounced
// the same way and trigger reload, which is expected to rebuild every
// affected collection.
type Coordinator struct {
	events chan Event
	window time.Duration
	lookup Lookup
	reload func(ctx context.Context) error
	logger *slog.Logger
	hook   func(Event, error)

	mu      sync.Mutex
	pending map[key]*pending
	seq     uint64
	wg      sync.WaitGroup
}

// New returns a coordinator. reload may be nil when configuration is not
// watched.
func New(lookup Lookup, reload func(ctx context.Context) error, opts Options) *Coordinator {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Coordinator{
		events:  make(chan Event, 256),
		window:  opts.Window,
		lookup:  lookup,
		reload:  reload,
		logger:  opts.Logger,
		hook:    opts.OnInvalidate,
		pending: make(map[key]*pending),
	}
}

// Events returns the channel change notifications are sent on.
func (c *Coordinator) Events() chan<- Event { return c.events }

// Run processes events until ctx is cancelled, then stops pending timers
// and waits for invalidations already firing.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator: started", slog.Duration("window", c.window))
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			for k, p := range c.pending {
				if p.timer.Stop() {
					c.wg.Done()
				}
				delete(c.pending, k)
			}
			c.mu.Unlock()
			c.wg.Wait()
			c.logger.Info("coordinator: stopped")
			return nil
		case ev := <-c.events:
			c.schedule(ctx, ev)
		}
	}
}

// Pending reports how many debounce timers are waiting.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Coordinator) schedule(ctx context.Context, ev Event) {
	k := key{collection: ev.Collection, path: ev.Path}
	switch ev.Kind {
	case ConfigChanged:
		k = key{}
	case Rescan:
		k.path = ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[k]; ok && p.timer.Stop() {
		c.wg.Done()
	}
	c.seq++
	token := c.seq
	c.wg.Add(1)
	c.pending[k] = &pending{
		token: token,
		timer: time.AfterFunc(c.window, func() {
			defer c.wg.Done()
			c.fire(ctx, k, token, ev)
		}),
	}
}

func (c *Coordinator) fire(ctx context.Context, k key, token uint64, ev Event) {
	c.mu.Lock()
	p, ok := c.pending[k]
	if !ok || p.token != token {
		c.mu.Unlock()
		return
	}
	delete(c.pending, k)
	c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	err := c.dispatch(ctx, ev)
	if c.hook != nil {
		c.hook(ev, err)
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev Event) error {
	if ev.Kind == ConfigChanged {
		if c.reload == nil {
			return nil
		}
		c.logger.Info("coordinator: configuration changed, reloading")
		if err := c.reload(ctx); err != nil {
			c.logger.Error("coordinator: reload failed", slog.String("error", err.Error()))
			return err
		}
		return nil
	}

	target, err := c.lookup(ev.Collection)
	if err != nil {
		c.logger.Debug("coordinator: collection not available",
			slog.String("collection", ev.Collection), slog.String("error", err.Error()))
		return err
	}
	scope := store.PathScope(ev.Path)
	if ev.Kind == Rescan {
		scope = store.All
	}
	if err := target.Invalidate(ctx, scope); err != nil {
		if errors.Is(err, store.ErrSuperseded) {
			return nil
		}
		c.logger.Warn("coordinator: invalidate failed",
			slog.String("collection", ev.Collection),
			slog.String("path", ev.Path),
			slog.String("error", err.Error()))
		return err
	}
	c.logger.Debug("coordinator: invalidated",
		slog.String("collection", ev.Collection),
		slog.String("path", ev.Path),
		slog.String("kind", ev.Kind.String()))
	return nil
}
