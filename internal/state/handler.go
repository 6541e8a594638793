package state

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/taskloom/taskloom/internal/history"
)

// ErrInvalidIndex reports an out-of-range update to the UI event log. This
// is a programming-contract violation, not a recoverable condition.
var ErrInvalidIndex = errors.New("invalid message index")

// Store is the persistence collaborator for the dual logs.
type Store interface {
	EnsureTaskDir(taskID string) (string, error)
	SaveAPIHistory(taskID string, turns []history.Turn) error
	SaveUIEvents(taskID string, events []Event) error
	// DirSize is best-effort telemetry, never a correctness input.
	DirSize(path string) (int64, error)
}

// IndexWriter records the consolidated per-task history index entry.
type IndexWriter interface {
	UpdateTaskIndex(rec IndexRecord) error
}

// IndexRecord is the consolidated bookkeeping row for one task.
type IndexRecord struct {
	ID              string
	ULID            string
	Ts              int64
	Task            string
	TokensIn        int
	TokensOut       int
	CacheWrites     int
	CacheReads      int
	TotalCost       float64
	Size            int64
	DeletedRange    *Range
	CheckpointError string
}

// Handler owns the dual log for one task. It is exclusively owned by that
// task's goroutine; mutations between suspension points are atomic.
type Handler struct {
	taskID    string
	ulid      string
	taskState *TaskState
	store     Store
	index     IndexWriter

	apiHistory []history.Turn
	events     []Event
}

// NewHandler creates a message state handler. index may be nil when no
// history index is kept (tests, ephemeral runs).
func NewHandler(taskID, ulid string, taskState *TaskState, store Store, index IndexWriter) *Handler {
	return &Handler{
		taskID:    taskID,
		ulid:      ulid,
		taskState: taskState,
		store:     store,
		index:     index,
	}
}

// APIHistory returns a copy of the API conversation history.
func (h *Handler) APIHistory() []history.Turn {
	out := make([]history.Turn, len(h.apiHistory))
	copy(out, h.apiHistory)
	return out
}

// AppendAPITurn appends a turn to the API history and persists it. No
// transformation is applied.
func (h *Handler) AppendAPITurn(turn history.Turn) error {
	h.apiHistory = append(h.apiHistory, turn)
	if err := h.store.SaveAPIHistory(h.taskID, h.apiHistory); err != nil {
		return fmt.Errorf("save api history: %w", err)
	}
	return nil
}

// OverwriteAPIHistory replaces the API history wholesale and persists it.
// Used for condensation and truncation. Already-stamped event indices are
// not touched: compaction only changes future reads.
func (h *Handler) OverwriteAPIHistory(newHistory []history.Turn) error {
	h.apiHistory = newHistory
	if err := h.store.SaveAPIHistory(h.taskID, h.apiHistory); err != nil {
		return fmt.Errorf("save api history: %w", err)
	}
	return nil
}

// Events returns a copy of the UI event log.
func (h *Handler) Events() []Event {
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// AppendEvent stamps the event with the current conversation history index
// and deleted range, appends it, and runs the save-and-derive pass.
//
// The stamped index points at the last user turn already appended; the API
// history gains the completed assistant turn only after the event has been
// presented.
func (h *Handler) AppendEvent(ev Event) error {
	ev.ConversationHistoryIndex = len(h.apiHistory) - 1
	ev.ConversationHistoryDeletedRange = h.taskState.ConversationHistoryDeletedRange
	h.events = append(h.events, ev)
	return h.saveEventsAndUpdateIndex()
}

// OverwriteEvents replaces the UI event log wholesale and persists it.
func (h *Handler) OverwriteEvents(events []Event) error {
	h.events = events
	return h.saveEventsAndUpdateIndex()
}

// UpdateEvent merges a patch into the event at index and re-persists.
// Returns ErrInvalidIndex if index is not a valid position.
func (h *Handler) UpdateEvent(index int, patch EventPatch) error {
	if index < 0 || index >= len(h.events) {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if patch.Text != nil {
		h.events[index].Text = *patch.Text
	}
	if patch.Partial != nil {
		h.events[index].Partial = *patch.Partial
	}
	return h.saveEventsAndUpdateIndex()
}

// FindLastEvent returns the index of the last event matching pred, or -1.
func (h *Handler) FindLastEvent(pred func(Event) bool) int {
	for i := len(h.events) - 1; i >= 0; i-- {
		if pred(h.events[i]) {
			return i
		}
	}
	return -1
}

// saveEventsAndUpdateIndex persists the UI log, then derives the
// consolidated history-index record: aggregate metrics over the log, the
// last substantive event's timestamp as "last active", and the on-disk
// footprint. Footprint and index failures are best-effort: logged, never
// surfaced.
func (h *Handler) saveEventsAndUpdateIndex() error {
	if err := h.store.SaveUIEvents(h.taskID, h.events); err != nil {
		return fmt.Errorf("save ui events: %w", err)
	}
	if h.index == nil || len(h.events) == 0 {
		return nil
	}

	metrics := h.Metrics()

	// The first entry is always the task-announcement say.
	taskText := h.events[0].Text

	lastRelevant := h.FindLastEvent(func(ev Event) bool {
		return !(ev.Ask == AskResumeTask || ev.Ask == AskResumeCompleted)
	})
	ts := h.events[len(h.events)-1].Ts
	if lastRelevant != -1 {
		ts = h.events[lastRelevant].Ts
	}

	var dirSize int64
	if taskDir, err := h.store.EnsureTaskDir(h.taskID); err == nil {
		if size, err := h.store.DirSize(taskDir); err == nil {
			dirSize = size
		} else {
			slog.Warn("failed to measure task directory size", "task", h.taskID, "error", err)
		}
	}

	rec := IndexRecord{
		ID:              h.taskID,
		ULID:            h.ulid,
		Ts:              ts,
		Task:            taskText,
		TokensIn:        metrics.TokensIn,
		TokensOut:       metrics.TokensOut,
		CacheWrites:     metrics.CacheWrites,
		CacheReads:      metrics.CacheReads,
		TotalCost:       metrics.TotalCost,
		Size:            dirSize,
		DeletedRange:    h.taskState.ConversationHistoryDeletedRange,
		CheckpointError: h.taskState.CheckpointTrackerErrorMessage,
	}
	if err := h.index.UpdateTaskIndex(rec); err != nil {
		slog.Warn("failed to update history index", "task", h.taskID, "error", err)
	}
	return nil
}
