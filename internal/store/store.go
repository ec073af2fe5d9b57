// Package store keeps a local history of loss calculation runs in a sqlite
// database, so past runs can be listed and traced back to their workspaces.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"oasisrun/internal/model"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run is one recorded loss calculation.
type Run struct {
	ID         string
	Model      string
	RunDir     string
	Status     string
	ExitStatus int
	StartedAt  time.Time
	FinishedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	run_dir     TEXT NOT NULL,
	status      TEXT NOT NULL,
	exit_status INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
`

// Store is a sqlite-backed run registry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open run registry: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize run registry: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordStart registers a new run and returns its ID.
func (s *Store) RecordStart(id model.ModelIdentity, runDir string) (string, error) {
	runID := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, model, run_dir, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		runID, id.String(), runDir, StatusRunning, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("record run start: %w", err)
	}
	return runID, nil
}

// RecordFinish closes out a run with the engine's exit status.
func (s *Store) RecordFinish(runID string, exitStatus int) error {
	status := StatusCompleted
	if exitStatus != 0 {
		status = StatusFailed
	}
	res, err := s.db.Exec(
		`UPDATE runs SET status = ?, exit_status = ?, finished_at = ? WHERE id = ?`,
		status, exitStatus, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("record run finish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record run finish: unknown run %s", runID)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]Run, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, model, run_dir, status, exit_status, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Model, &r.RunDir, &r.Status, &r.ExitStatus, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
