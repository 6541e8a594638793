// Package task runs one agent task end to end: refinement, the provider
// tool-calling loop, history condensation, and the completion state machine.
// A task executes as one cooperative sequence of suspendable steps; between
// any two suspension points its state mutations are atomic.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/taskloom/taskloom/internal/checkpoint"
	"github.com/taskloom/taskloom/internal/condense"
	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/events"
	"github.com/taskloom/taskloom/internal/history"
	"github.com/taskloom/taskloom/internal/notify"
	"github.com/taskloom/taskloom/internal/phase"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/refine"
	"github.com/taskloom/taskloom/internal/state"
	"github.com/taskloom/taskloom/internal/storage"
	"github.com/taskloom/taskloom/internal/stream"
	"github.com/taskloom/taskloom/internal/tools"
	"github.com/taskloom/taskloom/internal/ui"
)

// mistakeEscalationThreshold is the consecutive-mistake count at which the
// task stops and asks the human for guidance instead of looping.
const mistakeEscalationThreshold = 3

// Task is one agent task. Exclusively owned by the goroutine that calls
// Run; none of its methods are safe for concurrent use.
type Task struct {
	cfg       *config.Config
	id        string
	transport provider.Transport
	console   ui.Interactor

	taskState *state.TaskState
	msgState  *state.Handler
	sessions  *history.Store
	tracker   *phase.Tracker
	registry  *tools.Registry
	saver     checkpoint.Saver
	mirror    *events.Mirror
	notifier  *notify.SlackNotifier
	refiner   *refine.Refiner

	// summary is the rolling condensation summary carried across
	// compactions.
	summary string
}

// New assembles a task over the given collaborators. phases may be nil for
// a single-shot task.
func New(cfg *config.Config, transport provider.Transport, console ui.Interactor, store *storage.TaskStore, phases []phase.Phase) *Task {
	taskState := &state.TaskState{}
	t := &Task{
		cfg:       cfg,
		id:        uuid.NewString(),
		transport: transport,
		console:   console,
		taskState: taskState,
		sessions:  history.NewStore(),
		tracker:   phase.NewTracker(phases, cfg.Phases.MaxRetries),
		registry:  tools.NewRegistry(),
		saver:     checkpoint.Nop{},
		mirror:    events.NewMirror(cfg.Events),
		notifier:  notify.NewSlackNotifier(cfg.Notify),
	}
	t.msgState = state.NewHandler(t.id, uuid.NewString(), taskState, store, store)
	// Refinement runs before the task announcement, so its questions go
	// straight to the console rather than the task event log.
	t.refiner = refine.New(transport, console, store)
	t.registry.Register(tools.NewCompletionTool(t.capabilities(), t.msgState, taskState, t.tracker))
	return t
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// Ask records a blocking question on the UI log and waits for the human's
// answer. Implements ui.Interactor for components that need to ask.
func (t *Task) Ask(ctx context.Context, kind, text string) (ui.AskResponse, error) {
	ev := state.NewAsk(kind, text)
	if err := t.msgState.AppendEvent(ev); err != nil {
		return ui.AskResponse{}, err
	}
	t.mirror.Publish(ctx, t.id, ev)
	return t.console.Ask(ctx, kind, text)
}

// Say records output on the UI log and displays it. Implements
// ui.Interactor.
func (t *Task) Say(ctx context.Context, kind, text string, opts ui.SayOptions) error {
	_, err := t.sayEvent(ctx, kind, text, opts)
	return err
}

// sayEvent is Say returning the recorded event's timestamp. Partial says
// patch the pending partial event in place instead of appending; the final
// non-partial say for a logical event closes it out.
func (t *Task) sayEvent(ctx context.Context, kind, text string, opts ui.SayOptions) (int64, error) {
	idx := t.msgState.FindLastEvent(func(ev state.Event) bool {
		return ev.Kind == state.KindSay && ev.Say == kind && ev.Partial
	})

	if idx >= 0 {
		partial := opts.Partial
		if err := t.msgState.UpdateEvent(idx, state.EventPatch{Text: &text, Partial: &partial}); err != nil {
			return 0, err
		}
		ev := t.msgState.Events()[idx]
		if !opts.Partial {
			t.mirror.Publish(ctx, t.id, ev)
		}
		if err := t.console.Say(ctx, kind, text, opts); err != nil {
			return 0, err
		}
		return ev.Ts, nil
	}

	ev := state.NewSay(kind, text)
	ev.Images = opts.Images
	ev.Files = opts.Files
	ev.Partial = opts.Partial
	if err := t.msgState.AppendEvent(ev); err != nil {
		return 0, err
	}
	if !opts.Partial {
		t.mirror.Publish(ctx, t.id, ev)
	}
	if err := t.console.Say(ctx, kind, text, opts); err != nil {
		return 0, err
	}
	return ev.Ts, nil
}

// Run executes the task for the given user prompt. It returns nil both on
// acceptance and on bounded termination (iteration cap); only
// infrastructure failures and cancellation return errors.
func (t *Task) Run(ctx context.Context, prompt string) error {
	t.initCheckpoints(ctx)
	t.sessions.SetMode(history.ModeAct)

	refined, err := t.refiner.Refine(ctx, t.id, prompt)
	if err != nil {
		return fmt.Errorf("refine prompt: %w", err)
	}
	if refined.RefinedPrompt == refined.OriginalPrompt && refined.Explanation != "" {
		slog.Info("running with unrefined prompt", "reason", refined.Explanation)
	}

	// The first UI event is always the task announcement.
	if err := t.Say(ctx, state.SayTask, refined.RefinedPrompt, ui.SayOptions{}); err != nil {
		return err
	}
	if err := t.appendUserTurn(refined.RefinedPrompt); err != nil {
		return err
	}

	for i := 0; i < t.cfg.Model.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.condenseIfNeeded(ctx)

		response, err := t.request(ctx)
		if err != nil {
			return err
		}

		done, err := t.handleResponse(ctx, response)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if t.taskState.ConsecutiveMistakeCount >= mistakeEscalationThreshold {
			if err := t.escalateMistakes(ctx); err != nil {
				return err
			}
		}
	}

	return t.Say(ctx, state.SayError, "Reached the iteration limit without a completion signal. Stopping.", ui.SayOptions{})
}

// initCheckpoints sets up the git checkpoint tracker. A workspace without a
// git repository degrades to no checkpoints; the failure is recorded for
// display, never fatal.
func (t *Task) initCheckpoints(ctx context.Context) {
	tracker, err := checkpoint.NewGitTracker(ctx, t.cfg.Paths.Workspace)
	if err != nil {
		t.taskState.CheckpointTrackerErrorMessage = err.Error()
		slog.Warn("checkpoints disabled", "error", err)
		return
	}
	t.saver = tracker
}

// request runs one provider round trip: records the api_req_started event,
// streams the response with progressive display, stamps usage onto the
// event, and appends the assistant turn.
func (t *Task) request(ctx context.Context) (string, error) {
	info, _ := json.Marshal(state.APIRequestInfo{})
	if err := t.Say(ctx, state.SayAPIReqStarted, string(info), ui.SayOptions{}); err != nil {
		return "", err
	}
	reqIdx := t.msgState.FindLastEvent(func(ev state.Event) bool {
		return ev.Say == state.SayAPIReqStarted
	})

	ch, err := t.transport.StreamMessage(ctx, t.systemPrompt(), t.messages())
	if err != nil {
		return "", fmt.Errorf("start model stream: %w", err)
	}

	text, usage, err := stream.CollectProgress(ctx, ch, func(buffered string) {
		_ = t.console.Say(ctx, state.SayText, buffered, ui.SayOptions{Partial: true})
	})
	if err != nil {
		return "", fmt.Errorf("collect model stream: %w", err)
	}

	if usage != nil && reqIdx >= 0 {
		info, _ := json.Marshal(state.APIRequestInfo{
			TokensIn:  usage.PromptTokens,
			TokensOut: usage.CompletionTokens,
		})
		patched := string(info)
		if err := t.msgState.UpdateEvent(reqIdx, state.EventPatch{Text: &patched}); err != nil {
			slog.Warn("failed to stamp usage onto request event", "error", err)
		}
	}

	if err := t.appendAssistantTurn(text); err != nil {
		return "", err
	}
	return text, nil
}

// toolEnvelope is the JSON shape the model replies with.
type toolEnvelope struct {
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params"`
}

// handleResponse parses the model's tool envelope and executes it. Returns
// done=true when the completion tool reports acceptance (empty payload).
func (t *Task) handleResponse(ctx context.Context, response string) (bool, error) {
	var env toolEnvelope
	if err := stream.DecodeObject(response, &env); err != nil || env.Tool == "" {
		t.taskState.RecordMistake()
		if err := t.Say(ctx, state.SayError, "The model response was not a valid tool invocation.", ui.SayOptions{}); err != nil {
			return false, err
		}
		return false, t.appendUserTurn(`Error: your last response was not a single tool invocation. Reply with exactly one JSON object of the form {"tool": "<name>", "params": {...}}.`)
	}

	tool, ok := t.registry.Get(env.Tool)
	if !ok {
		t.taskState.RecordMistake()
		return false, t.appendUserTurn(fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", env.Tool, strings.Join(t.toolNames(), ", ")))
	}

	result, err := tool.Execute(ctx, env.Params)
	if err != nil {
		return false, fmt.Errorf("execute tool %s: %w", env.Tool, err)
	}

	if env.Tool == "attempt_completion" && result == "" {
		// Accepted: the exchange is over.
		return true, nil
	}
	return false, t.appendUserTurn(fmt.Sprintf("[%s] Result:\n%s", env.Tool, result))
}

// escalateMistakes pauses the loop to ask the human for guidance after
// repeated malformed tool invocations.
func (t *Task) escalateMistakes(ctx context.Context) error {
	resp, err := t.Ask(ctx, state.AskFollowup, "The model keeps producing invalid tool invocations. Provide guidance to continue, or answer 'yes' to let it keep trying.")
	if err != nil {
		return err
	}
	t.taskState.RecordValidCall()
	if resp.Response == ui.ResponseYes || strings.TrimSpace(resp.Text) == "" {
		return nil
	}
	if err := t.Say(ctx, state.SayUserFeedback, resp.Text, ui.SayOptions{Images: resp.Images, Files: resp.Files}); err != nil {
		return err
	}
	return t.appendUserTurn(fmt.Sprintf("The user interjected with guidance:\n<feedback>\n%s\n</feedback>", resp.Text))
}

// condenseIfNeeded compacts the API history once it grows past the
// configured turn count. The rolling summary replaces the compacted prefix;
// a condensation failure only defers compaction.
func (t *Task) condenseIfNeeded(ctx context.Context) {
	limit := t.cfg.Model.CondenseAfterTurns
	if limit <= 0 {
		return
	}
	apiHistory := t.msgState.APIHistory()
	if len(apiHistory) < limit {
		return
	}

	const keepTail = 4
	cut := len(apiHistory) - keepTail
	if cut <= 0 {
		return
	}

	summary, err := condense.Condense(ctx, t.transport, t.summary, apiHistory[:cut], t.cfg.Model.CondenseTokenLimit)
	if err != nil {
		slog.Warn("history condensation failed, keeping full history", "error", err)
		return
	}
	t.summary = summary

	newHistory := make([]history.Turn, 0, keepTail+1)
	newHistory = append(newHistory, history.Turn{
		Role:    history.RoleUser,
		Content: "Summary of the work so far:\n" + summary,
	})
	newHistory = append(newHistory, apiHistory[cut:]...)

	t.taskState.ConversationHistoryDeletedRange = &state.Range{Start: 0, End: cut}
	if err := t.msgState.OverwriteAPIHistory(newHistory); err != nil {
		slog.Warn("failed to persist condensed history", "error", err)
	}
}

// capabilities wires the completion tool's dependency surface to this task.
func (t *Task) capabilities() tools.Capabilities {
	return tools.Capabilities{
		Ask: t.Ask,
		Say: t.sayEvent,
		SaveCheckpoint: func(ctx context.Context, isCompletion bool, messageTs int64) error {
			return t.saver.Save(ctx, isCompletion, messageTs)
		},
		HasNewWorkspaceChanges: func(ctx context.Context) bool {
			return t.saver.HasNewWorkspaceChanges(ctx)
		},
		ExecuteCommand: t.runCommand,
		RestartPhase:   t.restartPhase,
		Notify: func(ctx context.Context, result string) {
			t.notifier.CompletionResult(ctx, t.id, result)
		},
	}
}

// runCommand executes a user-approved shell command in the workspace under
// the configured timeout. The boolean reports user rejection, which this
// runner never produces on its own.
func (t *Task) runCommand(ctx context.Context, command string) (bool, string, error) {
	execCtx := ctx
	if t.cfg.Tools.ExecTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, t.cfg.Tools.ExecTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(execCtx, "sh", "-c", command)
	cmd.Dir = t.cfg.Paths.Workspace
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, "", fmt.Errorf("run command: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return false, strings.TrimSpace(string(out)), nil
}

// restartPhase seeds the next model turn with the retry instruction.
func (t *Task) restartPhase(ctx context.Context) error {
	p, ok := t.tracker.Current()
	if !ok {
		return t.appendUserTurn("The user chose to retry. Redo the work and attempt completion again.")
	}
	return t.appendUserTurn(fmt.Sprintf("The user chose to retry the phase %q. Redo its work, addressing any shortcomings, and attempt completion again.", p.Title))
}

func (t *Task) appendUserTurn(content string) error {
	turn := history.Turn{Role: history.RoleUser, Content: content}
	if err := t.msgState.AppendAPITurn(turn); err != nil {
		return err
	}
	t.sessions.Append(turn)
	return nil
}

func (t *Task) appendAssistantTurn(content string) error {
	turn := history.Turn{Role: history.RoleAssistant, Content: content}
	if err := t.msgState.AppendAPITurn(turn); err != nil {
		return err
	}
	t.sessions.Append(turn)
	return nil
}

func (t *Task) messages() []provider.Message {
	apiHistory := t.msgState.APIHistory()
	out := make([]provider.Message, 0, len(apiHistory))
	for _, turn := range apiHistory {
		out = append(out, provider.Message{Role: turn.Role, Content: turn.Content})
	}
	return out
}

func (t *Task) toolNames() []string {
	list := t.registry.List()
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	return names
}

func (t *Task) systemPrompt() string {
	defs, _ := json.MarshalIndent(t.registry.Definitions(), "", "  ")
	var sb strings.Builder
	sb.WriteString(`You are an autonomous software agent. Work on the user's task step by step.

On every turn reply with exactly one JSON object invoking a tool:
{"tool": "<name>", "params": {...}}

When the task is finished, invoke attempt_completion with the final result.

AVAILABLE TOOLS:
`)
	sb.Write(defs)
	if p, ok := t.tracker.Current(); ok {
		fmt.Fprintf(&sb, "\n\nCURRENT PHASE: %s", p.Title)
		if p.Description != "" {
			fmt.Fprintf(&sb, "\n%s", p.Description)
		}
	}
	return sb.String()
}

// Close releases task-scoped resources.
func (t *Task) Close() error {
	return t.mirror.Close()
}
