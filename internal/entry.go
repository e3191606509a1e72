// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quarry/internal/api"
	"github.com/starford/quarry/internal/mcpserver"
	"github.com/starford/quarry/internal/sse"
)

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// boot builds the engine and performs the initial scan of every collection.
func boot(ctx context.Context, app *application) (*engine, *slog.Logger, error) {
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(app.logOutput, cfg.App.LogLevel)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Int("collections", len(cfg.Collections)),
		slog.Duration("debounce_window", cfg.Engine.DebounceWindow),
		slog.String("log_level", cfg.App.LogLevel.String()))

	e, err := newEngine(app, logger)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	if err := e.apply(ctx, cfg); err != nil {
		logger.Error("Initial scan incomplete", slog.String("error", err.Error()))
	}
	logger.Info("Initial scan done", slog.Duration("duration", time.Since(start)))
	return e, logger, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	e, logger, err := boot(ctx, app)
	if err != nil {
		return err
	}
	defer e.close()
	cfg := app.config

	broker := sse.NewBroker(cfg.Engine.EventThrottle)
	defer broker.Close()
	e.registry.Subscribe(broker.HandleChange)

	apiRouter := api.NewRouter(e.catalog, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", e.ready)
	r.Handle("/metrics", promhttp.HandlerFor(e.gatherer, promhttp.HandlerOpts{}))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)
	e.start(gCtx, g)

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ready reports 503 while any configured collection is unavailable.
func (e *engine) ready(w http.ResponseWriter, _ *http.Request) {
	type collectionState struct {
		Name  string `json:"name"`
		Error string `json:"error"`
	}
	body := struct {
		Status      string            `json:"status"`
		Unavailable []collectionState `json:"unavailable,omitempty"`
	}{Status: "ok"}
	for _, st := range e.registry.List() {
		if st.Err != nil {
			body.Unavailable = append(body.Unavailable, collectionState{Name: st.Name, Error: st.Err.Error()})
		}
	}
	code := http.StatusOK
	if len(body.Unavailable) > 0 {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// RunMCP serves the MCP tools over stdin and stdout. Logs must not share
// stdout with the protocol, so they go to stderr unless WithLogOutput says
// otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	e, logger, err := boot(ctx, app)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gCtx := errgroup.WithContext(ctx)
	e.start(gCtx, g)

	srv := mcpserver.New(e.catalog, app.version)
	g.Go(func() error {
		defer stop()
		logger.Info("MCP server listening on stdio")
		if err := srv.Serve(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}
	return nil
}
