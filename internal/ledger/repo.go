package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/layerexport/internal/apperr"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// RunRow represents a row in the runs table.
type RunRow struct {
	ID             string
	Source         string
	SourceChecksum string
	OutputRoot     string
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         string
	Error          string
	// Outputs is the number of recorded outputs; filled on reads.
	Outputs int
}

// OutputRow represents one exported file of a run.
type OutputRow struct {
	RunID     string
	Path      string
	Hierarchy string
	Order     int
	Checksum  string
}

// RecordRun stores a run and its outputs within a transaction. Recording
// the same run id again replaces the earlier record.
func (db *DB) RecordRun(run RunRow, outputs []OutputRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO runs (id, source, source_checksum, output_root, started_at, finished_at, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			source          = excluded.source,
			source_checksum = excluded.source_checksum,
			output_root     = excluded.output_root,
			started_at      = excluded.started_at,
			finished_at     = excluded.finished_at,
			status          = excluded.status,
			error           = excluded.error
	`, run.ID, run.Source, run.SourceChecksum, run.OutputRoot, run.StartedAt, run.FinishedAt, run.Status, run.Error)
	if err != nil {
		return fmt.Errorf("ledger: upsert run: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM outputs WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("ledger: clear outputs: %w", err)
	}
	if len(outputs) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO outputs (run_id, path, hierarchy, ord, checksum) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("ledger: prepare output insert: %w", err)
		}
		defer stmt.Close()
		for _, o := range outputs {
			if _, err := stmt.Exec(run.ID, o.Path, o.Hierarchy, o.Order, o.Checksum); err != nil {
				return fmt.Errorf("ledger: insert output: %w", err)
			}
		}
	}

	return tx.Commit()
}

const runColumns = `id, source, source_checksum, output_root, started_at, finished_at, status, error,
	(SELECT count(*) FROM outputs o WHERE o.run_id = runs.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRow, error) {
	var r RunRow
	err := s.Scan(&r.ID, &r.Source, &r.SourceChecksum, &r.OutputRoot,
		&r.StartedAt, &r.FinishedAt, &r.Status, &r.Error, &r.Outputs)
	return r, err
}

// GetRun returns one run by id.
func (db *DB) GetRun(id string) (*RunRow, error) {
	r, err := scanRun(db.conn.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ledger: run %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outputs returns the outputs of a run in export order.
func (db *DB) Outputs(runID string) ([]OutputRow, error) {
	rows, err := db.conn.Query(`
		SELECT run_id, path, hierarchy, ord, checksum
		FROM outputs WHERE run_id = ? ORDER BY ord, path
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("ledger: outputs: %w", err)
	}
	defer rows.Close()

	var out []OutputRow
	for rows.Next() {
		var o OutputRow
		if err := rows.Scan(&o.RunID, &o.Path, &o.Hierarchy, &o.Order, &o.Checksum); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
