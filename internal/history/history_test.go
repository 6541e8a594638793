package history

import (
	"testing"
)

func TestAppendWithoutModeIsDropped(t *testing.T) {
	s := NewStore()

	s.Append(Turn{Role: RoleUser, Content: "lost"})

	if got := s.Current(); len(got) != 0 {
		t.Errorf("expected empty history, got %d turns", len(got))
	}
	if s.CurrentSessionID() != 0 {
		t.Errorf("expected session id 0, got %d", s.CurrentSessionID())
	}
	if _, set := s.CurrentMode(); set {
		t.Error("expected no mode set")
	}
}

func TestSetModeIdempotent(t *testing.T) {
	s := NewStore()

	s.SetMode(ModePlan)
	s.SetMode(ModePlan)
	s.SetMode(ModePlan)

	if s.SessionCount() != 1 {
		t.Errorf("expected 1 session, got %d", s.SessionCount())
	}
	if s.CurrentSessionID() != 1 {
		t.Errorf("expected session id 1, got %d", s.CurrentSessionID())
	}
}

func TestSessionsPerModeRun(t *testing.T) {
	s := NewStore()

	// Number of sessions equals the number of maximal runs of equal
	// consecutive modes: 1,1,2,2,1 -> 3 runs.
	for _, m := range []int{1, 1, 2, 2, 1} {
		s.SetMode(m)
	}
	if s.SessionCount() != 3 {
		t.Errorf("expected 3 sessions, got %d", s.SessionCount())
	}
}

func TestPartitioningScenario(t *testing.T) {
	s := NewStore()

	s.SetMode(1)
	s.Append(Turn{Role: RoleUser, Content: "A"})
	s.SetMode(2)
	s.Append(Turn{Role: RoleUser, Content: "B"})
	s.SetMode(1)
	s.Append(Turn{Role: RoleUser, Content: "C"})

	if s.SessionCount() != 3 {
		t.Fatalf("expected 3 sessions, got %d", s.SessionCount())
	}

	for i, want := range []string{"A", "B", "C"} {
		sess, ok := s.BySessionOrder(i + 1)
		if !ok {
			t.Fatalf("session order %d missing", i+1)
		}
		if len(sess.Messages) != 1 || sess.Messages[0].Content != want {
			t.Errorf("session order %d: expected [%s], got %v", i+1, want, sess.Messages)
		}
	}

	cur := s.Current()
	if len(cur) != 1 || cur[0].Content != "C" {
		t.Errorf("expected current history [C], got %v", cur)
	}
	if s.CurrentSessionID() != 3 {
		t.Errorf("expected current session 3, got %d", s.CurrentSessionID())
	}
}

func TestBySessionOrderOutOfRange(t *testing.T) {
	s := NewStore()
	s.SetMode(1)

	if _, ok := s.BySessionOrder(0); ok {
		t.Error("expected order 0 to be out of range")
	}
	if _, ok := s.BySessionOrder(2); ok {
		t.Error("expected order 2 to be out of range")
	}
}

func TestHistoryCopyIsDetached(t *testing.T) {
	s := NewStore()
	s.SetMode(1)
	s.Append(Turn{Role: RoleUser, Content: "A"})

	got := s.Current()
	got[0].Content = "mutated"

	if fresh := s.Current(); fresh[0].Content != "A" {
		t.Error("returned slice must be a copy")
	}
}

func TestReset(t *testing.T) {
	s := NewStore()
	s.SetMode(1)
	s.Append(Turn{Role: RoleUser, Content: "A"})

	s.Reset()

	if s.SessionCount() != 0 || s.CurrentSessionID() != 0 {
		t.Error("expected cleared store")
	}
	// After reset, the very first SetMode allocates session #1 again.
	s.SetMode(2)
	if s.CurrentSessionID() != 1 {
		t.Errorf("expected session id 1 after reset, got %d", s.CurrentSessionID())
	}
}

func TestHistoryForMissingSession(t *testing.T) {
	s := NewStore()
	s.SetMode(1)
	if got := s.History(99); len(got) != 0 {
		t.Errorf("expected empty history for missing session, got %v", got)
	}
}
