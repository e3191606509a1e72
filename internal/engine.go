package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quarry/internal/catalog"
	"github.com/starford/quarry/internal/coordinator"
	"github.com/starford/quarry/internal/metrics"
	"github.com/starford/quarry/internal/search"
	"github.com/starford/quarry/internal/store"
	"github.com/starford/quarry/internal/watch"
	pkgconfig "github.com/starford/quarry/pkg/config"
)

// engine holds the long-running components shared by the serve and mcp
// commands: the collection registry, its change pipeline and the derived
// search index.
type engine struct {
	logger   *slog.Logger
	path     string
	registry *store.Registry
	db       *search.DB
	indexer  *search.Indexer
	metrics  *metrics.Metrics
	gatherer *prometheus.Registry
	catalog  *catalog.Service
	coord    *coordinator.Coordinator
	watcher  *watch.Watcher

	mu    sync.Mutex // serializes reloads
	cfg   *Config
	known map[string]struct{}
}

func newEngine(app *application, logger *slog.Logger) (*engine, error) {
	cfg := app.config

	db, err := search.Open()
	if err != nil {
		return nil, fmt.Errorf("init search index: %w", err)
	}

	gatherer := prometheus.NewRegistry()
	gatherer.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(gatherer)

	reg := store.NewRegistry(logger)
	ix := search.NewIndexer(db, search.RegistrySnapshots(reg), logger)
	reg.Subscribe(ix.Handle)
	reg.Subscribe(m.HandleChange)

	e := &engine{
		logger:   logger,
		path:     app.configPath,
		registry: reg,
		db:       db,
		indexer:  ix,
		metrics:  m,
		gatherer: gatherer,
		catalog:  catalog.NewService(reg, ix, m, cfg.QueryOptions()),
		cfg:      cfg,
		known:    make(map[string]struct{}),
	}

	var reload func(context.Context) error
	if e.path != "" {
		reload = e.reload
	}
	e.coord = coordinator.New(coordinator.RegistryLookup(reg), reload, coordinator.Options{
		Window:       cfg.Engine.DebounceWindow,
		Logger:       logger,
		OnInvalidate: m.ObserveInvalidation,
	})

	e.watcher, err = watch.New(e.coord.Events(), watch.Options{ConfigFile: e.path, Logger: logger})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init watcher: %w", err)
	}
	return e, nil
}

// start runs the background loops on g.
func (e *engine) start(ctx context.Context, g *errgroup.Group) {
	g.Go(func() error { return e.coord.Run(ctx) })
	g.Go(func() error { return e.watcher.Run(ctx) })
	g.Go(func() error { return e.indexer.Run(ctx) })
}

func (e *engine) close() {
	e.registry.Close()
	if err := e.db.Close(); err != nil {
		e.logger.Warn("search index close failed", slog.String("error", err.Error()))
	}
}

// apply reconciles the registry with cfg and points the watcher, search
// index and metrics at the resulting set of collections. Per-collection
// failures are logged and returned joined; the other collections are
// served regardless.
func (e *engine) apply(ctx context.Context, cfg *Config) error {
	err := e.registry.Apply(ctx, cfg.Definitions())

	var (
		names   []string
		targets []watch.Target
		current = make(map[string]struct{})
	)
	for _, st := range e.registry.List() {
		names = append(names, st.Name)
		current[st.Name] = struct{}{}
		if st.Store == nil {
			e.metrics.ForgetCollection(st.Name)
			e.indexer.Mark(st.Name)
			continue
		}
		targets = append(targets, watch.Target{Collection: st.Name, Source: st.Store.Source()})
		e.indexer.Mark(st.Name)
	}
	for name := range e.known {
		if _, ok := current[name]; !ok {
			e.metrics.ForgetCollection(name)
		}
	}
	e.known = current

	if werr := e.watcher.SetTargets(targets); werr != nil {
		e.logger.Warn("watcher: some folders could not be watched", slog.String("error", werr.Error()))
	}
	if perr := e.indexer.Prune(names); perr != nil {
		e.logger.Warn("search: prune failed", slog.String("error", perr.Error()))
	}
	return err
}

// reload re-reads the configuration file. An unreadable or invalid file
// leaves the running configuration in place.
func (e *engine) reload(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(e.path, cfg); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	if cfg.App != e.cfg.App || cfg.Auth != e.cfg.Auth ||
		cfg.Engine.DebounceWindow != e.cfg.Engine.DebounceWindow ||
		cfg.Engine.MaxPageSize != e.cfg.Engine.MaxPageSize ||
		cfg.Engine.EventThrottle != e.cfg.Engine.EventThrottle {
		e.logger.Warn("config: changes outside collections and scan settings take effect on restart")
	}
	e.cfg = cfg

	err := e.apply(ctx, cfg)
	e.logger.Info("config: reloaded", slog.Int("collections", len(cfg.Collections)))
	return err
}
