// Package history provides the mode-partitioned conversation history store.
//
// Mode switches are a context boundary: mixing prior-mode turns into the
// model's context would confuse it. Each maximal run of equal consecutive
// modes gets its own session, preserving per-mode continuity while the UI
// shows one linear timeline elsewhere.
package history

import (
	"sync"
)

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Mode tags used by the task runner. Modes are plain integer tags; the
// store treats them opaquely.
const (
	ModePlan = 1
	ModeAct  = 2
)

// Turn is one conversation turn sent to the model. Immutable once appended;
// append order is conversation order.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one mode partition of the conversation.
type Session struct {
	ID       int    `json:"sessionId"`
	Mode     int    `json:"mode"`
	Messages []Turn `json:"messages"`
}

// Store is the session-partitioned history log. A new session is created
// exactly when the active mode differs from the previously active mode,
// including the very first SetMode call.
type Store struct {
	mu          sync.Mutex
	sessions    []*Session
	currentID   int
	currentMode int
	modeSet     bool
}

// NewStore creates an empty store. Until SetMode is called, reads return
// empty and appends are silently dropped.
func NewStore() *Store {
	return &Store{}
}

// SetMode sets the active mode, allocating a new session when the mode
// changes. Idempotent under repeated identical calls.
func (s *Store) SetMode(mode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.modeSet && mode == s.currentMode {
		return
	}
	s.modeSet = true
	s.currentMode = mode
	s.currentID++
	s.sessions = append(s.sessions, &Session{
		ID:       s.currentID,
		Mode:     mode,
		Messages: []Turn{},
	})
}

// Append adds a turn to the current session. A no-op, not an error, if no
// mode has ever been set.
func (s *Store) Append(turn Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentID <= 0 {
		return
	}
	cur := s.sessions[len(s.sessions)-1]
	cur.Messages = append(cur.Messages, turn)
}

// History returns a copy of the message sequence for the given session id,
// or empty if the session does not exist.
func (s *Store) History(sessionID int) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked(sessionID)
}

// Current returns a copy of the current session's message sequence, or
// empty if no session is active.
func (s *Store) Current() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLocked(s.currentID)
}

func (s *Store) historyLocked(sessionID int) []Turn {
	if sessionID <= 0 {
		return nil
	}
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			out := make([]Turn, len(sess.Messages))
			copy(out, sess.Messages)
			return out
		}
	}
	return nil
}

// BySessionOrder returns the nth session created (1-indexed), or false if
// out of range.
func (s *Store) BySessionOrder(n int) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 || n > len(s.sessions) {
		return Session{}, false
	}
	sess := s.sessions[n-1]
	out := Session{ID: sess.ID, Mode: sess.Mode, Messages: make([]Turn, len(sess.Messages))}
	copy(out.Messages, sess.Messages)
	return out, true
}

// CurrentSessionID returns the active session id, 0 if no mode was ever set.
func (s *Store) CurrentSessionID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID
}

// CurrentMode returns the active mode and whether any mode was ever set.
func (s *Store) CurrentMode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentMode, s.modeSet
}

// SessionCount returns the number of sessions created so far.
func (s *Store) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Reset clears all sessions and the current-session pointer.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = nil
	s.currentID = 0
	s.currentMode = 0
	s.modeSet = false
}
