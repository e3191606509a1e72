package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/quarry/internal/coordinator"
	"github.com/starford/quarry/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []coordinator.Event
}

func (r *recorder) has(want coordinator.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev == want {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, opts Options, targets ...Target) *recorder {
	t.Helper()
	opts.Logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ch := make(chan coordinator.Event, 64)
	w, err := New(ch, opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.SetTargets(targets); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rec := &recorder{}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = w.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				rec.mu.Lock()
				rec.events = append(rec.events, ev)
				rec.mu.Unlock()
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	time.Sleep(100 * time.Millisecond)
	return rec
}

func TestWatcher_FileLifecycle(t *testing.T) {
	dir, fsys := testutil.TestCollection(t)
	rec := startWatcher(t, Options{}, Target{Collection: "posts", Source: fsys})

	testutil.WriteFile(t, dir, "new.md", "---\ntitle: New\n---\n")
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Collection: "posts", Path: "new.md", Kind: coordinator.Created})
	})

	testutil.WriteFile(t, dir, "ignored.txt", "nope")
	testutil.WriteFile(t, dir, ".hidden.md", "nope")

	testutil.RemoveFile(t, dir, "new.md")
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Collection: "posts", Path: "new.md", Kind: coordinator.Removed})
	})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.Path == "ignored.txt" || ev.Path == ".hidden.md" {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestWatcher_RenameReportsOldPath(t *testing.T) {
	dir, fsys := testutil.TestCollection(t)
	testutil.WriteFile(t, dir, "old.md", "---\ntitle: Old\n---\n")
	rec := startWatcher(t, Options{}, Target{Collection: "posts", Source: fsys})

	if err := os.Rename(filepath.Join(dir, "old.md"), filepath.Join(dir, "renamed.md")); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Collection: "posts", Path: "old.md", Kind: coordinator.Removed}) &&
			rec.has(coordinator.Event{Collection: "posts", Path: "renamed.md", Kind: coordinator.Created})
	})
}

func TestWatcher_NewDirectory(t *testing.T) {
	dir, fsys := testutil.TestCollection(t)
	rec := startWatcher(t, Options{}, Target{Collection: "posts", Source: fsys})

	// Populate outside the root, then move in so the files already exist
	// when the directory appears.
	staging := t.TempDir()
	testutil.WriteFile(t, staging, "sub/a.md", "---\ntitle: A\n---\n")
	if err := os.Rename(filepath.Join(staging, "sub"), filepath.Join(dir, "sub")); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Collection: "posts", Path: "sub/a.md", Kind: coordinator.Created})
	})

	// The new directory is watched too.
	testutil.WriteFile(t, dir, "sub/b.md", "---\ntitle: B\n---\n")
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Collection: "posts", Path: "sub/b.md", Kind: coordinator.Created})
	})
}

func TestWatcher_ConfigFile(t *testing.T) {
	cfgDir := t.TempDir()
	cfgFile := filepath.Join(cfgDir, "config.yaml")
	testutil.WriteFile(t, cfgDir, "config.yaml", "collections: {}\n")
	rec := startWatcher(t, Options{ConfigFile: cfgFile})

	testutil.WriteFile(t, cfgDir, "other.yaml", "x: 1\n")
	testutil.WriteFile(t, cfgDir, "config.yaml", "collections: {}\napp: {}\n")
	testutil.Eventually(t, 5*time.Second, func() bool {
		return rec.has(coordinator.Event{Kind: coordinator.ConfigChanged})
	})
	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.Kind != coordinator.ConfigChanged {
			t.Errorf("unexpected event %+v", ev)
		}
	}
}

func TestWatcher_SetTargetsDropsOld(t *testing.T) {
	dirA, fsA := testutil.TestCollection(t)
	_, fsB := testutil.TestCollection(t)
	ch := make(chan coordinator.Event, 8)
	w, err := New(ch, Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.w.Close() })

	if err := w.SetTargets([]Target{{Collection: "a", Source: fsA}, {Collection: "b", Source: fsB}}); err != nil {
		t.Fatal(err)
	}
	if err := w.SetTargets([]Target{{Collection: "b", Source: fsB}}); err != nil {
		t.Fatal(err)
	}
	for _, p := range w.w.WatchList() {
		if p == dirA || p == fsA.Root() {
			t.Errorf("%s still watched", p)
		}
	}
	if _, ok := w.owner(filepath.Join(fsB.Root(), "x.md")); !ok {
		t.Error("b should still own its files")
	}
}
