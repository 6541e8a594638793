package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/taskloom/taskloom/internal/history"
	"github.com/taskloom/taskloom/internal/state"
)

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	store, err := NewTaskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewTaskStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	turns := []history.Turn{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}
	if err := store.SaveAPIHistory("t1", turns); err != nil {
		t.Fatalf("SaveAPIHistory error: %v", err)
	}
	got, err := store.LoadAPIHistory("t1")
	if err != nil {
		t.Fatalf("LoadAPIHistory error: %v", err)
	}
	if len(got) != 2 || got[1].Content != "hello" {
		t.Errorf("unexpected history: %v", got)
	}

	events := []state.Event{state.NewSay(state.SayTask, "the task")}
	if err := store.SaveUIEvents("t1", events); err != nil {
		t.Fatalf("SaveUIEvents error: %v", err)
	}
	gotEvents, err := store.LoadUIEvents("t1")
	if err != nil {
		t.Fatalf("LoadUIEvents error: %v", err)
	}
	if len(gotEvents) != 1 || gotEvents[0].Text != "the task" {
		t.Errorf("unexpected events: %v", gotEvents)
	}
}

func TestLoadMissingTaskIsEmpty(t *testing.T) {
	store := newTestStore(t)

	turns, err := store.LoadAPIHistory("nope")
	if err != nil {
		t.Fatalf("LoadAPIHistory error: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history, got %v", turns)
	}
}

func TestDirSize(t *testing.T) {
	store := newTestStore(t)

	dir, err := store.EnsureTaskDir("t1")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "blob"), make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}

	size, err := store.DirSize(dir)
	if err != nil {
		t.Fatalf("DirSize error: %v", err)
	}
	if size < 1000 {
		t.Errorf("expected at least 1000 bytes, got %d", size)
	}
}

func TestArtifactAndSnapshot(t *testing.T) {
	store := newTestStore(t)

	path, err := store.WriteArtifact("t1", "original\n\nrefined")
	if err != nil {
		t.Fatalf("WriteArtifact error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original\n\nrefined" {
		t.Errorf("unexpected artifact content: %q", data)
	}

	if err := store.SnapshotArtifact("t1", "original\n\nrefined"); err != nil {
		t.Fatalf("SnapshotArtifact error: %v", err)
	}
	snapPath := filepath.Join(filepath.Dir(path), "refined_task.snapshot.md")
	info, err := os.Stat(snapPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0o222 != 0 {
		t.Errorf("expected read-only snapshot, got mode %v", info.Mode())
	}
}

func TestTaskIndexUpsert(t *testing.T) {
	store := newTestStore(t)

	rec := state.IndexRecord{
		ID: "t1", ULID: "u1", Ts: 123, Task: "first",
		TokensIn: 10, TokensOut: 5, TotalCost: 0.25, Size: 100,
	}
	if err := store.UpdateTaskIndex(rec); err != nil {
		t.Fatalf("UpdateTaskIndex error: %v", err)
	}

	rec.Ts = 456
	rec.Task = "updated"
	rec.DeletedRange = &state.Range{Start: 2, End: 5}
	rec.CheckpointError = "shadow git unavailable"
	if err := store.UpdateTaskIndex(rec); err != nil {
		t.Fatalf("UpdateTaskIndex upsert error: %v", err)
	}

	got, ok, err := store.GetTaskIndex("t1")
	if err != nil {
		t.Fatalf("GetTaskIndex error: %v", err)
	}
	if !ok {
		t.Fatal("expected record")
	}
	if got.Ts != 456 || got.Task != "updated" {
		t.Errorf("expected updated row, got %+v", got)
	}
	if got.DeletedRange == nil || got.DeletedRange.Start != 2 {
		t.Errorf("expected deleted range, got %+v", got.DeletedRange)
	}
	if got.CheckpointError != "shadow git unavailable" {
		t.Errorf("expected checkpoint error, got %q", got.CheckpointError)
	}

	list, err := store.ListTaskIndex()
	if err != nil {
		t.Fatalf("ListTaskIndex error: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 record, got %d", len(list))
	}
}

func TestGetTaskIndexMissing(t *testing.T) {
	store := newTestStore(t)
	_, ok, err := store.GetTaskIndex("missing")
	if err != nil {
		t.Fatalf("GetTaskIndex error: %v", err)
	}
	if ok {
		t.Error("expected no record")
	}
}
