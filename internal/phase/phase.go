// Package phase tracks a task's progress through its bounded sequence of
// work phases and enforces the per-phase retry budget.
package phase

import (
	"fmt"
	"sync"
)

// RetryLimit is the process-wide default retry budget per phase. Exceeding
// it is never an error, only a forced-progress signal.
const RetryLimit = 3

// Completion actions classify what a completion signal means for the task.
type Action string

const (
	// ActionAllComplete: every phase is complete.
	ActionAllComplete Action = "all_complete"
	// ActionPartialComplete: the current phase is complete, more remain.
	ActionPartialComplete Action = "partial_complete"
	// ActionNone: no phase plan exists (single-shot task).
	ActionNone Action = "none"
)

// Phase is one bounded unit of agent work, advanced or retried as a whole.
type Phase struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// Tracker is the sole source of truth for phase position. It is shared
// between the completion handler and the scheduler; both treat advance and
// retry as request-then-confirm and never infer position themselves.
type Tracker struct {
	mu         sync.Mutex
	phases     []Phase
	current    int
	retryCount int
	maxRetries int
}

// NewTracker creates a tracker over the given phases. maxRetries < 0 falls
// back to the process-wide RetryLimit.
func NewTracker(phases []Phase, maxRetries int) *Tracker {
	if maxRetries < 0 {
		maxRetries = RetryLimit
	}
	return &Tracker{
		phases:     append([]Phase(nil), phases...),
		maxRetries: maxRetries,
	}
}

// CurrentIndex returns the current phase index.
func (t *Tracker) CurrentIndex() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Current returns the current phase, or false if there is no phase plan.
func (t *Tracker) Current() (Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.phases) == 0 {
		return Phase{}, false
	}
	return t.phases[t.current], true
}

// RetryCount returns retries consumed for the current phase.
func (t *Tracker) RetryCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount
}

// MarkCurrentComplete records that the current phase's work was signalled
// complete.
func (t *Tracker) MarkCurrentComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.phases) == 0 {
		return
	}
	t.phases[t.current].Completed = true
}

// CompletionAction classifies the state of the plan after a completion
// signal.
func (t *Tracker) CompletionAction() Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.phases) == 0 {
		return ActionNone
	}
	for _, p := range t.phases {
		if !p.Completed {
			return ActionPartialComplete
		}
	}
	return ActionAllComplete
}

// HasNext reports whether a phase follows the current one.
func (t *Tracker) HasNext() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current+1 < len(t.phases)
}

// Advance moves to the next phase and resets the retry count. Returns false
// if there is no next phase.
func (t *Tracker) Advance() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current+1 >= len(t.phases) {
		return false
	}
	t.current++
	t.retryCount = 0
	return true
}

// CanRetry reports whether the retry budget for the current phase still has
// room.
func (t *Tracker) CanRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retryCount < t.maxRetries
}

// Retry consumes one retry for the current phase and un-completes it.
// Returns false without consuming anything once the budget is exhausted —
// the count never exceeds maxRetries.
func (t *Tracker) Retry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.retryCount >= t.maxRetries {
		return false
	}
	t.retryCount++
	if len(t.phases) > 0 {
		t.phases[t.current].Completed = false
	}
	return true
}

// RetryLimitMessage is the user-facing text for an exhausted retry budget.
func (t *Tracker) RetryLimitMessage() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return fmt.Sprintf("Retry limit reached: phase %d has used all %d retries.", t.current+1, t.maxRetries)
}

// Phases returns a copy of the phase plan.
func (t *Tracker) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.phases...)
}
