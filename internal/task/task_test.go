package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/history"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/state"
	"github.com/taskloom/taskloom/internal/storage"
	"github.com/taskloom/taskloom/internal/ui"
)

// scriptedTransport replays canned responses in order.
type scriptedTransport struct {
	responses []string
	calls     int
}

func (s *scriptedTransport) StreamMessage(ctx context.Context, system string, messages []provider.Message) (<-chan provider.Chunk, error) {
	if len(s.responses) == 0 {
		return nil, errors.New("no scripted response left")
	}
	s.calls++
	resp := s.responses[0]
	s.responses = s.responses[1:]

	ch := make(chan provider.Chunk, 2)
	ch <- provider.Chunk{Kind: provider.ChunkText, Text: resp}
	ch <- provider.Chunk{Kind: provider.ChunkUsage, Usage: &provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}
	close(ch)
	return ch, nil
}

func (s *scriptedTransport) DefaultModel() string { return "test-model" }

// autoConsole answers every question affirmatively and records says.
type autoConsole struct {
	asks []string
	says []string
}

func (c *autoConsole) Ask(ctx context.Context, kind, text string) (ui.AskResponse, error) {
	c.asks = append(c.asks, kind)
	return ui.AskResponse{Response: ui.ResponseYes}, nil
}

func (c *autoConsole) Say(ctx context.Context, kind, text string, opts ui.SayOptions) error {
	if !opts.Partial {
		c.says = append(c.says, kind)
	}
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.Workspace = t.TempDir()
	cfg.Model.MaxIterations = 5
	cfg.Model.CondenseAfterTurns = 0
	cfg.Provider.Timeout = time.Second
	return cfg
}

func newTestStore(t *testing.T, cfg *config.Config) *storage.TaskStore {
	t.Helper()
	store, err := storage.NewTaskStore(cfg.Paths.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

const fullAnalysis = `{
  "extractedData": {
    "projectName": "Portfolio",
    "projectType": "portfolio",
    "mainFeatures": ["gallery"],
    "designStyle": "minimalist",
    "primaryColor": "black",
    "targetAudience": "recruiters",
    "technologies": ["Next.js"],
    "pages": ["home page"],
    "animations": "smooth scrolling"
  },
  "missingRequiredSlots": [],
  "followUpQuestions": [],
  "needsMoreInfo": false,
  "refinedPrompt": "draft"
}`

const completionEnvelope = `{"tool": "attempt_completion", "params": {"result": "The site is built."}}`

func TestRunCompletesOnAcceptedCompletion(t *testing.T) {
	cfg := testConfig(t)
	transport := &scriptedTransport{responses: []string{
		fullAnalysis,
		"### Project Overview\nA portfolio site.",
		completionEnvelope,
	}}
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	if err := tk.Run(context.Background(), "build my portfolio"); err != nil {
		t.Fatal(err)
	}

	events := tk.msgState.Events()
	if len(events) == 0 || events[0].Say != state.SayTask {
		t.Fatal("first event must be the task announcement")
	}
	if !strings.Contains(events[0].Text, "Project Overview") {
		t.Errorf("task announcement should carry the refined prompt: %q", events[0].Text)
	}

	apiHistory := tk.msgState.APIHistory()
	if len(apiHistory) != 2 {
		t.Fatalf("api history = %d turns, want user+assistant", len(apiHistory))
	}
	if apiHistory[1].Role != history.RoleAssistant {
		t.Errorf("second turn role = %q", apiHistory[1].Role)
	}

	// The session store mirrors the API turns under the active mode.
	if got := len(tk.sessions.Current()); got != 2 {
		t.Errorf("session turns = %d, want 2", got)
	}
	if mode, _ := tk.sessions.CurrentMode(); mode != history.ModeAct {
		t.Errorf("mode = %d, want act", mode)
	}

	// Usage was stamped onto the request event.
	idx := tk.msgState.FindLastEvent(func(ev state.Event) bool {
		return ev.Say == state.SayAPIReqStarted
	})
	if idx == -1 {
		t.Fatal("no api_req_started event")
	}
	if m := tk.msgState.Metrics(); m.TokensIn != 10 || m.TokensOut != 5 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestMalformedResponseIsRecoverable(t *testing.T) {
	cfg := testConfig(t)
	// Analysis fails so refinement degrades; the first loop iteration gets a
	// malformed response, the second completes.
	transport := &scriptedTransport{responses: []string{
		"not json at all",
		"still not a tool call",
		completionEnvelope,
	}}
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	if err := tk.Run(context.Background(), "do the thing"); err != nil {
		t.Fatal(err)
	}

	// The malformed turn produced an error say and a corrective user turn.
	found := false
	for _, kind := range console.says {
		if kind == state.SayError {
			found = true
		}
	}
	if !found {
		t.Error("expected an error say for the malformed response")
	}
	var corrective bool
	for _, turn := range tk.msgState.APIHistory() {
		if turn.Role == history.RoleUser && strings.Contains(turn.Content, "not a single tool invocation") {
			corrective = true
		}
	}
	if !corrective {
		t.Error("expected a corrective user turn after the malformed response")
	}
	// The valid completion reset the mistake counter.
	if tk.taskState.ConsecutiveMistakeCount != 0 {
		t.Errorf("mistake count = %d, want 0", tk.taskState.ConsecutiveMistakeCount)
	}
}

func TestUnknownToolProducesCorrectiveTurn(t *testing.T) {
	cfg := testConfig(t)
	transport := &scriptedTransport{responses: []string{
		fullAnalysis,
		"spec",
		`{"tool": "write_file", "params": {}}`,
		completionEnvelope,
	}}
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	if err := tk.Run(context.Background(), "do the thing"); err != nil {
		t.Fatal(err)
	}
	var corrective bool
	for _, turn := range tk.msgState.APIHistory() {
		if strings.Contains(turn.Content, `unknown tool "write_file"`) {
			corrective = true
		}
	}
	if !corrective {
		t.Error("expected a corrective turn naming the unknown tool")
	}
}

func TestIterationLimitStopsWithError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.MaxIterations = 2
	transport := &scriptedTransport{responses: []string{
		fullAnalysis,
		"spec",
		"garbage one",
		"garbage two",
	}}
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	if err := tk.Run(context.Background(), "do the thing"); err != nil {
		t.Fatal(err)
	}
	last := console.says[len(console.says)-1]
	if last != state.SayError {
		t.Errorf("last say = %q, want error", last)
	}
}

func TestCondensationCompactsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.CondenseAfterTurns = 6
	transport := &scriptedTransport{responses: []string{"1. Earlier work summary"}}
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	tk.sessions.SetMode(history.ModeAct)
	for i := 0; i < 3; i++ {
		if err := tk.appendUserTurn("u"); err != nil {
			t.Fatal(err)
		}
		if err := tk.appendAssistantTurn("a"); err != nil {
			t.Fatal(err)
		}
	}

	tk.condenseIfNeeded(context.Background())

	apiHistory := tk.msgState.APIHistory()
	if len(apiHistory) != 5 {
		t.Fatalf("history = %d turns, want summary + 4 tail", len(apiHistory))
	}
	if !strings.Contains(apiHistory[0].Content, "Earlier work summary") {
		t.Errorf("first turn should carry the summary: %q", apiHistory[0].Content)
	}
	if r := tk.taskState.ConversationHistoryDeletedRange; r == nil || r.Start != 0 || r.End != 2 {
		t.Errorf("deleted range = %+v", r)
	}
	if tk.summary == "" {
		t.Error("rolling summary not retained")
	}

	// Subsequent UI events snapshot the deleted range.
	if err := tk.Say(context.Background(), state.SayText, "after", ui.SayOptions{}); err != nil {
		t.Fatal(err)
	}
	events := tk.msgState.Events()
	last := events[len(events)-1]
	if last.ConversationHistoryDeletedRange == nil || last.ConversationHistoryDeletedRange.End != 2 {
		t.Errorf("event deleted range = %+v", last.ConversationHistoryDeletedRange)
	}
}

func TestCondensationFailureKeepsHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Model.CondenseAfterTurns = 2
	transport := &scriptedTransport{} // no responses: condense call fails
	console := &autoConsole{}
	tk := New(cfg, transport, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	tk.sessions.SetMode(history.ModeAct)
	for i := 0; i < 6; i++ {
		if err := tk.appendUserTurn("turn"); err != nil {
			t.Fatal(err)
		}
	}
	tk.condenseIfNeeded(context.Background())

	if got := len(tk.msgState.APIHistory()); got != 6 {
		t.Errorf("history = %d turns, want untouched 6", got)
	}
	if tk.taskState.ConversationHistoryDeletedRange != nil {
		t.Error("deleted range must not be set on failure")
	}
}

func TestPartialSaysCollapseIntoOneEvent(t *testing.T) {
	cfg := testConfig(t)
	console := &autoConsole{}
	tk := New(cfg, &scriptedTransport{}, console, newTestStore(t, cfg), nil)
	defer tk.Close()

	ctx := context.Background()
	if err := tk.Say(ctx, state.SayText, "hel", ui.SayOptions{Partial: true}); err != nil {
		t.Fatal(err)
	}
	if err := tk.Say(ctx, state.SayText, "hello wor", ui.SayOptions{Partial: true}); err != nil {
		t.Fatal(err)
	}
	if err := tk.Say(ctx, state.SayText, "hello world", ui.SayOptions{}); err != nil {
		t.Fatal(err)
	}

	events := tk.msgState.Events()
	if len(events) != 1 {
		t.Fatalf("events = %d, want 1 collapsed event", len(events))
	}
	if events[0].Text != "hello world" || events[0].Partial {
		t.Errorf("final event = %+v", events[0])
	}
}
