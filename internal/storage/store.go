// Package storage persists task state: the dual logs as JSON documents in a
// per-task directory, refined-task artifacts, and the consolidated history
// index in sqlite.
package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/taskloom/taskloom/internal/history"
	"github.com/taskloom/taskloom/internal/state"
)

const (
	apiHistoryFile = "api_conversation_history.json"
	uiEventsFile   = "ui_events.json"
	artifactFile   = "refined_task.md"
	snapshotFile   = "refined_task.snapshot.md"
)

// TaskStore lays out per-task directories under a base dir and persists the
// dual logs. It also implements the history index via sqlite (index.go).
type TaskStore struct {
	baseDir string
	index   *indexDB
}

// NewTaskStore opens a task store rooted at baseDir. The history index
// database is created under it.
func NewTaskStore(baseDir string) (*TaskStore, error) {
	if err := os.MkdirAll(filepath.Join(baseDir, "tasks"), 0o755); err != nil {
		return nil, fmt.Errorf("create tasks dir: %w", err)
	}
	idx, err := openIndexDB(filepath.Join(baseDir, "history_index.db"))
	if err != nil {
		return nil, err
	}
	return &TaskStore{baseDir: baseDir, index: idx}, nil
}

// Close releases the index database.
func (s *TaskStore) Close() error {
	return s.index.Close()
}

// EnsureTaskDir creates (if needed) and returns the directory for a task.
func (s *TaskStore) EnsureTaskDir(taskID string) (string, error) {
	dir := filepath.Join(s.baseDir, "tasks", filepath.Base(taskID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create task dir: %w", err)
	}
	return dir, nil
}

// SaveAPIHistory writes the full API conversation history for a task.
func (s *TaskStore) SaveAPIHistory(taskID string, turns []history.Turn) error {
	return s.writeJSON(taskID, apiHistoryFile, turns)
}

// SaveUIEvents writes the full UI event log for a task.
func (s *TaskStore) SaveUIEvents(taskID string, events []state.Event) error {
	return s.writeJSON(taskID, uiEventsFile, events)
}

// LoadAPIHistory reads a task's API conversation history. A missing file
// yields an empty history.
func (s *TaskStore) LoadAPIHistory(taskID string) ([]history.Turn, error) {
	var turns []history.Turn
	if err := s.readJSON(taskID, apiHistoryFile, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// LoadUIEvents reads a task's UI event log. A missing file yields an empty
// log.
func (s *TaskStore) LoadUIEvents(taskID string) ([]state.Event, error) {
	var events []state.Event
	if err := s.readJSON(taskID, uiEventsFile, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DirSize measures the on-disk footprint of a directory in bytes.
func (s *TaskStore) DirSize(path string) (int64, error) {
	var total int64
	err := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", path, err)
	}
	return total, nil
}

// WriteArtifact records the refined task document for a task and returns
// its path. The name is deterministic from the task id.
func (s *TaskStore) WriteArtifact(taskID, content string) (string, error) {
	dir, err := s.EnsureTaskDir(taskID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, artifactFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// SnapshotArtifact writes a sibling copy of the artifact and marks it
// read-only as a tamper-evidence measure. Callers treat failure as
// best-effort.
func (s *TaskStore) SnapshotArtifact(taskID, content string) error {
	dir, err := s.EnsureTaskDir(taskID)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, snapshotFile)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Chmod(path, 0o444); err != nil {
		return fmt.Errorf("mark snapshot read-only: %w", err)
	}
	return nil
}

func (s *TaskStore) writeJSON(taskID, name string, v any) error {
	dir, err := s.EnsureTaskDir(taskID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (s *TaskStore) readJSON(taskID, name string, v any) error {
	dir := filepath.Join(s.baseDir, "tasks", filepath.Base(taskID))
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}
