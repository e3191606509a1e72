// Package search keeps an in-memory SQLite full-text index of served items.
// The index is derived from store snapshots and rebuilt from scratch on
// every start.
package search

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS docs (
	collection TEXT NOT NULL,
	path       TEXT NOT NULL,
	id         TEXT NOT NULL,
	checksum   TEXT NOT NULL DEFAULT '',
	fields     TEXT NOT NULL DEFAULT '',
	body       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (collection, path)
);

CREATE INDEX IF NOT EXISTS idx_docs_collection_id ON docs(collection, id);
`

// DB wraps a single-connection in-memory sql.DB.
type DB struct {
	conn *sql.DB
}

// Open creates an empty in-memory database and applies the schema.
func Open() (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("search: open db: %w", err)
	}
	// Every connection to :memory: is a separate database.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)
	conn.SetConnMaxIdleTime(0)
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("search: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
