package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kadirpekel/taskforge/internal/task"
)

// SQLiteRepository is the durable, queryable backend named in
// SPEC_FULL.md §4.9 — the tier a multi-process deployment reaches for once
// a flat JSON directory stops being enough. The schema is a single table
// keyed by task id; payload is the full workflow JSON blob, matching the
// teacher's checkpoint storage choice to keep the whole state co-located
// under one key rather than normalizing into columns.
type SQLiteRepository struct {
	db *sql.DB
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS workflows (
	task_id    TEXT PRIMARY KEY,
	phase      TEXT NOT NULL,
	payload    BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// NewSQLite opens (creating if absent) a SQLite-backed Repository at dsn.
func NewSQLite(dsn string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: open sqlite %s: %w", dsn, err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("repository: create schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) Save(ctx context.Context, w *task.Workflow) error {
	payload, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("repository: marshal workflow %s: %w", w.TaskID, err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (task_id, phase, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(task_id) DO UPDATE SET phase=excluded.phase, payload=excluded.payload, updated_at=excluded.updated_at
	`, w.TaskID, string(w.Phase), payload, w.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("repository: upsert workflow %s: %w", w.TaskID, err)
	}
	return nil
}

func (r *SQLiteRepository) Load(ctx context.Context, taskID string) (*task.Workflow, error) {
	row := r.db.QueryRowContext(ctx, `SELECT payload FROM workflows WHERE task_id = ?`, taskID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: load %s: %w", taskID, err)
	}
	var w task.Workflow
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("repository: unmarshal %s: %w", taskID, err)
	}
	return &w, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, taskID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("repository: delete %s: %w", taskID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListAll(ctx context.Context) ([]*task.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT payload FROM workflows`)
	if err != nil {
		return nil, fmt.Errorf("repository: list: %w", err)
	}
	defer rows.Close()

	var out []*task.Workflow
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var w task.Workflow
		if err := json.Unmarshal(payload, &w); err != nil {
			continue
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Exists(ctx context.Context, taskID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `SELECT 1 FROM workflows WHERE task_id = ?`, taskID)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("repository: exists %s: %w", taskID, err)
	}
	return true, nil
}
