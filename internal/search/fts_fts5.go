//go:build sqlite_fts5

package search

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS docs_fts USING fts5(
			collection UNINDEXED,
			path UNINDEXED,
			id UNINDEXED,
			fields,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, d Doc) error {
	ftsDelete(tx, d.Collection, d.Path)
	_, err := tx.Exec(`INSERT INTO docs_fts (collection, path, id, fields, body) VALUES (?, ?, ?, ?, ?)`,
		d.Collection, d.Path, d.ID, d.Fields, d.Body)
	if err != nil {
		return fmt.Errorf("search: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, collection, path string) {
	_, _ = tx.Exec(`DELETE FROM docs_fts WHERE collection = ? AND path = ?`, collection, path)
}

func ftsDeleteCollection(tx *sql.Tx, collection string) {
	_, _ = tx.Exec(`DELETE FROM docs_fts WHERE collection = ?`, collection)
}

// Search performs an FTS5 match within one collection, best matches first.
func (db *DB) Search(collection, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := db.conn.Query(`
		SELECT id,
		       path,
		       snippet(docs_fts, 4, '<b>', '</b>', '...', 64)
		FROM docs_fts
		WHERE docs_fts MATCH ? AND collection = ?
		ORDER BY rank
		LIMIT ?
	`, query, collection, limit)
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
