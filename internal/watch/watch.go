// Package watch feeds file system notifications for collection folders and
// the configuration file into the change coordinator.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/quarry/internal/coordinator"
	"github.com/starford/quarry/internal/storage"
)

// Target is one watched collection folder.
type Target struct {
	Collection string
	Source     storage.Provider
}

// Options configure a Watcher.
type Options struct {
	// ConfigFile, when set, is watched for changes. Its directory is watched
	// rather than the file itself so editors that replace the file on save
	// are still seen.
	ConfigFile string
	Logger     *slog.Logger
}

// Watcher translates fsnotify events into coordinator events. It performs no
// debouncing of its own.
type Watcher struct {
	w      *fsnotify.Watcher
	out    chan<- coordinator.Event
	logger *slog.Logger
	config string

	mu      sync.Mutex
	targets map[string]Target // keyed by absolute root
}

// New creates a watcher that sends to out.
func New(out chan<- coordinator.Event, opts Options) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	wt := &Watcher{
		w:       w,
		out:     out,
		logger:  opts.Logger,
		targets: make(map[string]Target),
	}
	if opts.ConfigFile != "" {
		abs, err := filepath.Abs(opts.ConfigFile)
		if err != nil {
			w.Close()
			return nil, err
		}
		wt.config = abs
		if err := w.Add(filepath.Dir(abs)); err != nil {
			w.Close()
			return nil, err
		}
	}
	return wt, nil
}

// SetTargets replaces the watched collection folders. Folders no longer
// listed stop being watched.
func (wt *Watcher) SetTargets(targets []Target) error {
	next := make(map[string]Target, len(targets))
	for _, t := range targets {
		next[t.Source.Root()] = t
	}

	wt.mu.Lock()
	defer wt.mu.Unlock()
	for root := range wt.targets {
		if _, ok := next[root]; !ok {
			removeDirsRecursive(wt.w, root)
		}
	}
	var errs []error
	for root, t := range next {
		if _, ok := wt.targets[root]; ok {
			continue
		}
		if err := addDirsRecursive(wt.w, root); err != nil {
			errs = append(errs, err)
			continue
		}
		wt.logger.Info("watcher: watching collection",
			slog.String("collection", t.Collection), slog.String("root", root))
	}
	wt.targets = next
	return errors.Join(errs...)
}

// Run processes notifications until ctx is cancelled. The underlying
// fsnotify watcher is closed on return.
func (wt *Watcher) Run(ctx context.Context) error {
	defer wt.w.Close()
	wt.logger.Info("watcher: started")
	for {
		select {
		case <-ctx.Done():
			wt.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-wt.w.Events:
			if !ok {
				return nil
			}
			wt.handle(ctx, ev)

		case err, ok := <-wt.w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				wt.logger.Warn("watcher: event queue overflowed, rescanning")
				for _, t := range wt.snapshotTargets() {
					wt.send(ctx, coordinator.Event{Collection: t.Collection, Kind: coordinator.Rescan})
				}
				continue
			}
			wt.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

func (wt *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	abs := filepath.Clean(ev.Name)
	if wt.config != "" && abs == wt.config {
		if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
			wt.send(ctx, coordinator.Event{Kind: coordinator.ConfigChanged})
		}
		return
	}

	t, ok := wt.owner(abs)
	if !ok {
		return
	}
	rel, err := t.Source.Rel(abs)
	if err != nil || hidden(rel) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(wt.w, abs); addErr != nil {
				wt.logger.Warn("watcher: add new dir failed",
					slog.String("path", abs), slog.String("error", addErr.Error()))
			} else {
				wt.logger.Debug("watcher: watching new dir", slog.String("path", abs))
			}
			wt.emitDir(ctx, t, abs)
			return
		}
		if t.Source.Matches(rel) {
			wt.send(ctx, coordinator.Event{Collection: t.Collection, Path: rel, Kind: coordinator.Created})
		}

	case ev.Op&fsnotify.Write != 0:
		if t.Source.Matches(rel) {
			wt.send(ctx, coordinator.Event{Collection: t.Collection, Path: rel, Kind: coordinator.Written})
		}

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// Rename fires on the old path only; the new name arrives as a
		// Create. The path may have been a directory, so the extension is
		// not checked here.
		wt.send(ctx, coordinator.Event{Collection: t.Collection, Path: rel, Kind: coordinator.Removed})
	}
}

// emitDir reports every content file already inside a newly created
// directory.
func (wt *Watcher) emitDir(ctx context.Context, t Target, dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := t.Source.Rel(p)
		if relErr != nil || !t.Source.Matches(rel) {
			return nil
		}
		wt.send(ctx, coordinator.Event{Collection: t.Collection, Path: rel, Kind: coordinator.Created})
		return nil
	})
}

func (wt *Watcher) send(ctx context.Context, ev coordinator.Event) {
	select {
	case wt.out <- ev:
	case <-ctx.Done():
	}
}

// owner returns the target with the longest root containing abs.
func (wt *Watcher) owner(abs string) (Target, bool) {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	var best Target
	found := false
	for root, t := range wt.targets {
		if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
			continue
		}
		if !found || len(root) > len(best.Source.Root()) {
			best, found = t, true
		}
	}
	if !found || abs == best.Source.Root() {
		return Target{}, false
	}
	return best, true
}

func (wt *Watcher) snapshotTargets() []Target {
	wt.mu.Lock()
	defer wt.mu.Unlock()
	out := make([]Target, 0, len(wt.targets))
	for _, t := range wt.targets {
		out = append(out, t)
	}
	return out
}

func hidden(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}

// addDirsRecursive adds root and all its non-hidden subdirectories.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}

func removeDirsRecursive(w *fsnotify.Watcher, root string) {
	for _, p := range w.WatchList() {
		if p == root || strings.HasPrefix(p, root+string(os.PathSeparator)) {
			_ = w.Remove(p)
		}
	}
}
