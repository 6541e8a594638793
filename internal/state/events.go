// Package state owns the authoritative dual log of a task: the API-facing
// conversation history and the user-facing event log. Every mutation
// persists synchronously before returning, so a crash leaves both logs
// consistent with the last completed operation.
package state

import (
	"time"
)

// Event kinds.
const (
	KindAsk = "ask"
	KindSay = "say"
)

// Ask subtypes.
const (
	AskFollowup           = "followup"
	AskCommand            = "command"
	AskCompletionResult   = "completion_result"
	AskProceed            = "ask_proceed"
	AskRetry              = "ask_retry"
	AskFinalRetry         = "ask_final_retry"
	AskResumeTask         = "resume_task"
	AskResumeCompleted    = "resume_completed_task"
)

// Say subtypes.
const (
	SayTask             = "task"
	SayText             = "text"
	SayError            = "error"
	SayCompletionResult = "completion_result"
	SayUserFeedback     = "user_feedback"
	SayAPIReqStarted    = "api_req_started"
)

// CompletionResultChangesFlag is appended to the last completion event's
// text when the checkpoint collaborator reports new workspace changes.
const CompletionResultChangesFlag = "HAS_CHANGES"

// Range marks a half-open index range of API history turns that were
// deleted by truncation.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Event is one entry in the user-facing log. The sequence is append-only:
// it never reorders or deletes, though individual fields may be patched.
//
// ConversationHistoryIndex is fixed at append time to the index of the last
// user turn already in the API history, establishing a reconstructible
// mapping from UI events back to the point in the API history that produced
// them. It is never recomputed, even if the API history is later compacted.
type Event struct {
	Ts      int64    `json:"ts"`
	Kind    string   `json:"kind"`
	Ask     string   `json:"ask,omitempty"`
	Say     string   `json:"say,omitempty"`
	Text    string   `json:"text,omitempty"`
	Images  []string `json:"images,omitempty"`
	Files   []string `json:"files,omitempty"`
	Partial bool     `json:"partial,omitempty"`

	ConversationHistoryIndex        int    `json:"conversationHistoryIndex"`
	ConversationHistoryDeletedRange *Range `json:"conversationHistoryDeletedRange,omitempty"`
}

// NewSay builds a say event stamped with the current time.
func NewSay(subtype, text string) Event {
	return Event{Ts: nowMs(), Kind: KindSay, Say: subtype, Text: text}
}

// NewAsk builds an ask event stamped with the current time.
func NewAsk(subtype, text string) Event {
	return Event{Ts: nowMs(), Kind: KindAsk, Ask: subtype, Text: text}
}

// EventPatch enumerates the fields that are legally updatable after append.
// Identity fields (timestamp, stamped index) are not patchable.
type EventPatch struct {
	Text    *string
	Partial *bool
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
