package state

// TaskState is the per-task mutable record. It lives for the lifetime of
// one task and is reset only by task-level reset. All mutation happens
// between suspension points of the single task goroutine, so fields need no
// locking.
type TaskState struct {
	// ConsecutiveMistakeCount increments once per tool invocation missing a
	// required parameter and resets to 0 on any syntactically valid one.
	ConsecutiveMistakeCount int

	// PhaseFinished records that a completion signal was handled for the
	// current phase.
	PhaseFinished bool

	// DidRejectTool records that the user rejected a gated tool action.
	DidRejectTool bool

	// ConversationHistoryDeletedRange is the API history range removed by
	// truncation, snapshotted onto UI events at append time.
	ConversationHistoryDeletedRange *Range

	// CheckpointTrackerErrorMessage carries a non-fatal checkpoint setup
	// failure for display.
	CheckpointTrackerErrorMessage string
}

// RecordMistake bumps the mistake counter for a tool call missing a
// required parameter.
func (ts *TaskState) RecordMistake() {
	ts.ConsecutiveMistakeCount++
}

// RecordValidCall resets the mistake counter after a syntactically valid
// tool invocation.
func (ts *TaskState) RecordValidCall() {
	ts.ConsecutiveMistakeCount = 0
}
