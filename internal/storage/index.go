package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/taskloom/taskloom/internal/state"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS task_index (
	id TEXT PRIMARY KEY,
	ulid TEXT NOT NULL,
	ts INTEGER NOT NULL,
	task TEXT,
	tokens_in INTEGER NOT NULL DEFAULT 0,
	tokens_out INTEGER NOT NULL DEFAULT 0,
	cache_writes INTEGER NOT NULL DEFAULT 0,
	cache_reads INTEGER NOT NULL DEFAULT 0,
	total_cost REAL NOT NULL DEFAULT 0,
	size INTEGER NOT NULL DEFAULT 0,
	deleted_range TEXT,
	checkpoint_error TEXT,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_task_index_ts ON task_index(ts);
`

type indexDB struct {
	db *sql.DB
}

func openIndexDB(dbPath string) (*indexDB, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open history index db: %w", err)
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	// Best-effort migration for databases created before the checkpoint
	// error column existed (no-op if the column is already there).
	_, _ = db.Exec(`ALTER TABLE task_index ADD COLUMN checkpoint_error TEXT`)
	return &indexDB{db: db}, nil
}

func (i *indexDB) Close() error {
	return i.db.Close()
}

// UpdateTaskIndex upserts the consolidated bookkeeping row for a task.
func (s *TaskStore) UpdateTaskIndex(rec state.IndexRecord) error {
	var deletedRange any
	if rec.DeletedRange != nil {
		data, err := json.Marshal(rec.DeletedRange)
		if err != nil {
			return fmt.Errorf("marshal deleted range: %w", err)
		}
		deletedRange = string(data)
	}
	_, err := s.index.db.Exec(`
		INSERT INTO task_index (id, ulid, ts, task, tokens_in, tokens_out, cache_writes, cache_reads, total_cost, size, deleted_range, checkpoint_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ulid = excluded.ulid,
			ts = excluded.ts,
			task = excluded.task,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out,
			cache_writes = excluded.cache_writes,
			cache_reads = excluded.cache_reads,
			total_cost = excluded.total_cost,
			size = excluded.size,
			deleted_range = excluded.deleted_range,
			checkpoint_error = excluded.checkpoint_error,
			updated_at = excluded.updated_at`,
		rec.ID, rec.ULID, rec.Ts, rec.Task,
		rec.TokensIn, rec.TokensOut, rec.CacheWrites, rec.CacheReads,
		rec.TotalCost, rec.Size, deletedRange, rec.CheckpointError,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert task index: %w", err)
	}
	return nil
}

// GetTaskIndex returns the index record for a task, or false if absent.
func (s *TaskStore) GetTaskIndex(taskID string) (state.IndexRecord, bool, error) {
	row := s.index.db.QueryRow(`
		SELECT id, ulid, ts, task, tokens_in, tokens_out, cache_writes, cache_reads, total_cost, size, deleted_range, checkpoint_error
		FROM task_index WHERE id = ?`, taskID)

	var rec state.IndexRecord
	var deletedRange sql.NullString
	var checkpointErr sql.NullString
	err := row.Scan(&rec.ID, &rec.ULID, &rec.Ts, &rec.Task,
		&rec.TokensIn, &rec.TokensOut, &rec.CacheWrites, &rec.CacheReads,
		&rec.TotalCost, &rec.Size, &deletedRange, &checkpointErr)
	if err == sql.ErrNoRows {
		return state.IndexRecord{}, false, nil
	}
	if err != nil {
		return state.IndexRecord{}, false, fmt.Errorf("query task index: %w", err)
	}
	if deletedRange.Valid && deletedRange.String != "" {
		var r state.Range
		if json.Unmarshal([]byte(deletedRange.String), &r) == nil {
			rec.DeletedRange = &r
		}
	}
	rec.CheckpointError = checkpointErr.String
	return rec, true, nil
}

// ListTaskIndex returns all index records, most recently active first.
func (s *TaskStore) ListTaskIndex() ([]state.IndexRecord, error) {
	rows, err := s.index.db.Query(`
		SELECT id, ulid, ts, task, tokens_in, tokens_out, cache_writes, cache_reads, total_cost, size, deleted_range, checkpoint_error
		FROM task_index ORDER BY ts DESC`)
	if err != nil {
		return nil, fmt.Errorf("query task index: %w", err)
	}
	defer rows.Close()

	var out []state.IndexRecord
	for rows.Next() {
		var rec state.IndexRecord
		var deletedRange sql.NullString
		var checkpointErr sql.NullString
		if err := rows.Scan(&rec.ID, &rec.ULID, &rec.Ts, &rec.Task,
			&rec.TokensIn, &rec.TokensOut, &rec.CacheWrites, &rec.CacheReads,
			&rec.TotalCost, &rec.Size, &deletedRange, &checkpointErr); err != nil {
			return nil, fmt.Errorf("scan task index: %w", err)
		}
		if deletedRange.Valid && deletedRange.String != "" {
			var r state.Range
			if json.Unmarshal([]byte(deletedRange.String), &r) == nil {
				rec.DeletedRange = &r
			}
		}
		rec.CheckpointError = checkpointErr.String
		out = append(out, rec)
	}
	return out, rows.Err()
}
