// Package ledger records export runs and their outputs in SQLite.
package ledger

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	source          TEXT NOT NULL,
	source_checksum TEXT NOT NULL DEFAULT '',
	output_root     TEXT NOT NULL,
	started_at      DATETIME NOT NULL,
	finished_at     DATETIME NOT NULL,
	status          TEXT NOT NULL,
	error           TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS outputs (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path      TEXT NOT NULL,
	hierarchy TEXT NOT NULL,
	ord       INTEGER NOT NULL,
	checksum  TEXT NOT NULL DEFAULT '',
	UNIQUE(run_id, path)
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_outputs_run ON outputs(run_id);
`

// DB wraps a sql.DB with ledger operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("ledger: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
