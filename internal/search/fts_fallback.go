//go:build !sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the docs table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ Doc) error { return nil }

func ftsDelete(_ *sql.Tx, _, _ string) {}

func ftsDeleteCollection(_ *sql.Tx, _ string) {}

// Search performs a LIKE-based search within one collection.
func (db *DB) Search(collection, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT id, path, substr(body, 1, 200)
		FROM docs
		WHERE collection = ? AND (fields LIKE ? OR body LIKE ? OR id LIKE ?)
		ORDER BY path
		LIMIT ?
	`, collection, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		h := Hit{Collection: collection}
		if err := rows.Scan(&h.ID, &h.Path, &h.Snippet); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
