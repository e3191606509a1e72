package search

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/starford/quarry/internal/apperr"
	"github.com/starford/quarry/internal/store"
	"github.com/starford/quarry/internal/testutil"
)

const noteSchema = `
required: [title]
properties:
  title:
    type: string
  tags:
    type: array
    items:
      type: string
`

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testStore(t *testing.T) (string, *store.Store) {
	t.Helper()
	dir, fsys := testutil.TestCollection(t)
	st := store.New(store.Config{Name: "notes", Schema: testutil.Schema(t, noteSchema), Source: fsys}, discard())
	t.Cleanup(st.Close)
	return dir, st
}

func paths(hits []Hit) []string {
	var out []string
	for _, h := range hits {
		out = append(out, h.Path)
	}
	return out
}

func TestUpsertDeleteSearch(t *testing.T) {
	db := testDB(t)
	docs := []Doc{
		{Collection: "notes", Path: "a.md", ID: "a", Checksum: "1", Fields: "Alpha", Body: "the quick brown fox"},
		{Collection: "notes", Path: "b.md", ID: "b", Checksum: "2", Fields: "Beta", Body: "lazy dog"},
		{Collection: "other", Path: "a.md", ID: "a", Checksum: "3", Body: "quick"},
	}
	if err := db.Upsert(docs...); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := db.Search("notes", "quick", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if diff := cmp.Diff([]string{"a.md"}, paths(hits)); diff != "" {
		t.Errorf("hits (-want +got):\n%s", diff)
	}
	if hits[0].Collection != "notes" || hits[0].ID != "a" || hits[0].Snippet == "" {
		t.Errorf("hit = %+v", hits[0])
	}

	if err := db.Delete("notes", "a.md"); err != nil {
		t.Fatal(err)
	}
	hits, _ = db.Search("notes", "quick", 10)
	if len(hits) != 0 {
		t.Errorf("deleted doc still found: %+v", hits)
	}
	if n, _ := db.Count("other"); n != 1 {
		t.Errorf("other collection count = %d", n)
	}
}

func TestUpsertReplaces(t *testing.T) {
	db := testDB(t)
	_ = db.Upsert(Doc{Collection: "notes", Path: "a.md", ID: "a", Checksum: "1", Body: "original words"})
	_ = db.Upsert(Doc{Collection: "notes", Path: "a.md", ID: "a", Checksum: "2", Body: "replacement words"})

	if hits, _ := db.Search("notes", "original", 10); len(hits) != 0 {
		t.Errorf("old content still found")
	}
	if hits, _ := db.Search("notes", "replacement", 10); len(hits) != 1 {
		t.Errorf("new content not found")
	}
	if n, _ := db.Count("notes"); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestSyncFollowsSnapshot(t *testing.T) {
	db := testDB(t)
	dir, st := testStore(t)
	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Alpha\ntags: [go]\n---\nfirst body\n")
	testutil.WriteFile(t, dir, "b.md", "---\ntitle: Beta\n---\nsecond body\n")
	testutil.WriteFile(t, dir, "bad.md", "---\ntags: [x]\n---\ninvalid body\n")
	ctx := context.Background()
	if err := st.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}

	if err := Sync(db, st.Snapshot(), discard()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if n, _ := db.Count("notes"); n != 2 {
		t.Fatalf("count = %d, want 2 (invalid items are not indexed)", n)
	}
	if hits, _ := db.Search("notes", "Alpha", 10); len(hits) != 1 || hits[0].ID != "a" {
		t.Errorf("metadata search = %+v", hits)
	}

	testutil.RemoveFile(t, dir, "b.md")
	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Alpha\n---\nrewritten body\n")
	if err := st.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if err := Sync(db, st.Snapshot(), discard()); err != nil {
		t.Fatal(err)
	}
	indexed, _ := db.Indexed("notes")
	if len(indexed) != 1 {
		t.Errorf("indexed = %v", indexed)
	}
	if hits, _ := db.Search("notes", "rewritten", 10); len(hits) != 1 {
		t.Errorf("updated body not found")
	}
}

func TestIndexerHandlesChanges(t *testing.T) {
	db := testDB(t)
	dir, st := testStore(t)
	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Alpha\n---\nneedle\n")

	snapshots := func(name string) (*store.Snapshot, error) {
		if name != "notes" {
			return nil, apperr.ErrNotFound
		}
		return st.Snapshot(), nil
	}
	ix := NewIndexer(db, snapshots, discard())
	st.Subscribe(ix.Handle)
	if err := st.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	ix.Flush()

	hits, err := ix.Search("notes", "needle", 0)
	if err != nil || len(hits) != 1 {
		t.Fatalf("Search = %+v, %v", hits, err)
	}

	// Removed collections are dropped.
	_ = db.Upsert(Doc{Collection: "gone", Path: "x.md", ID: "x", Body: "needle"})
	ix.Mark("gone")
	ix.Flush()
	if n, _ := db.Count("gone"); n != 0 {
		t.Errorf("gone count = %d", n)
	}
}

func TestIndexerRunAndPrune(t *testing.T) {
	db := testDB(t)
	dir, st := testStore(t)
	testutil.WriteFile(t, dir, "a.md", "---\ntitle: Alpha\n---\nhaystack\n")

	ix := NewIndexer(db, func(string) (*store.Snapshot, error) { return st.Snapshot(), nil }, discard())
	st.Subscribe(ix.Handle)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Run(ctx) }()

	if err := st.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	testutil.Eventually(t, 2*time.Second, func() bool {
		n, _ := db.Count("notes")
		return n == 1
	})
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run: %v", err)
	}

	_ = db.Upsert(Doc{Collection: "stale", Path: "s.md", ID: "s"})
	if err := ix.Prune([]string{"notes"}); err != nil {
		t.Fatal(err)
	}
	got, _ := db.Collections()
	if diff := cmp.Diff([]string{"notes"}, got); diff != "" {
		t.Errorf("collections (-want +got):\n%s", diff)
	}
}

func TestRegistrySnapshotsUnknown(t *testing.T) {
	reg := store.NewRegistry(discard())
	_, err := RegistrySnapshots(reg)("nope")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}
