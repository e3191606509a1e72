package search

import (
	"fmt"
	"strings"

	"github.com/starford/quarry/internal/models"
)

// DefaultLimit caps search results when the caller passes no limit.
const DefaultLimit = 20

// Doc is one indexed item.
type Doc struct {
	Collection string
	Path       string
	ID         string
	Checksum   string
	Fields     string // string metadata values, space separated
	Body       string
}

// Hit is one search result.
type Hit struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Path       string `json:"path"`
	Snippet    string `json:"snippet"`
}

// DocFromItem flattens an item into its indexed form.
func DocFromItem(it *models.Item) Doc {
	var fields []string
	for _, k := range it.Metadata.Keys() {
		v, _ := it.Metadata.Get(k)
		fields = appendText(fields, v)
	}
	d := Doc{
		Collection: it.Collection,
		Path:       it.Path,
		ID:         it.ID,
		Checksum:   it.Checksum,
		Fields:     strings.Join(fields, " "),
	}
	if it.Body != nil {
		d.Body = *it.Body
	}
	return d
}

func appendText(dst []string, v any) []string {
	switch x := v.(type) {
	case string:
		return append(dst, x)
	case []any:
		for _, e := range x {
			dst = appendText(dst, e)
		}
	}
	return dst
}

// Upsert inserts or replaces docs in one transaction.
func (db *DB) Upsert(docs ...Doc) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	stmt, err := tx.Prepare(`
		INSERT INTO docs (collection, path, id, checksum, fields, body)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, path) DO UPDATE SET
			id       = excluded.id,
			checksum = excluded.checksum,
			fields   = excluded.fields,
			body     = excluded.body
	`)
	if err != nil {
		return fmt.Errorf("search: prepare upsert: %w", err)
	}
	defer stmt.Close()
	for _, d := range docs {
		if _, err := stmt.Exec(d.Collection, d.Path, d.ID, d.Checksum, d.Fields, d.Body); err != nil {
			return fmt.Errorf("search: upsert %s/%s: %w", d.Collection, d.Path, err)
		}
		if err := ftsUpsert(tx, d); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes the docs at paths in collection.
func (db *DB) Delete(collection string, paths ...string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range paths {
		ftsDelete(tx, collection, p)
		if _, err := tx.Exec(`DELETE FROM docs WHERE collection = ? AND path = ?`, collection, p); err != nil {
			return fmt.Errorf("search: delete %s/%s: %w", collection, p, err)
		}
	}
	return tx.Commit()
}

// DeleteCollection removes every doc of collection.
func (db *DB) DeleteCollection(collection string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("search: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDeleteCollection(tx, collection)
	if _, err := tx.Exec(`DELETE FROM docs WHERE collection = ?`, collection); err != nil {
		return fmt.Errorf("search: delete collection %s: %w", collection, err)
	}
	return tx.Commit()
}

// Indexed returns the stored path -> version key of collection.
func (db *DB) Indexed(collection string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, id, checksum FROM docs WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("search: indexed: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, id, cs string
		if err := rows.Scan(&p, &id, &cs); err != nil {
			return nil, err
		}
		out[p] = docKey(id, cs)
	}
	return out, rows.Err()
}

// Collections returns every collection with at least one doc.
func (db *DB) Collections() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT collection FROM docs ORDER BY collection`)
	if err != nil {
		return nil, fmt.Errorf("search: collections: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Count returns the number of docs in collection.
func (db *DB) Count(collection string) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT count(*) FROM docs WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("search: count: %w", err)
	}
	return n, nil
}

func docKey(id, checksum string) string { return id + "\x00" + checksum }
