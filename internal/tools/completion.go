package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/taskloom/taskloom/internal/phase"
	"github.com/taskloom/taskloom/internal/state"
	"github.com/taskloom/taskloom/internal/ui"
)

// Capabilities is the narrow dependency surface the completion tool
// receives instead of a monolithic task object.
type Capabilities struct {
	// Ask blocks for a human response. Say records and displays an event
	// and returns its timestamp.
	Ask func(ctx context.Context, kind, text string) (ui.AskResponse, error)
	Say func(ctx context.Context, kind, text string, opts ui.SayOptions) (int64, error)

	// SaveCheckpoint and HasNewWorkspaceChanges are the two checkpoint
	// collaborator calls the core issues.
	SaveCheckpoint         func(ctx context.Context, isCompletion bool, messageTs int64) error
	HasNewWorkspaceChanges func(ctx context.Context) bool

	// ExecuteCommand runs a user-approved shell command. rejected reports
	// that the user stopped the execution midway.
	ExecuteCommand func(ctx context.Context, command string) (rejected bool, output string, err error)

	// RestartPhase re-seeds the current phase after an approved retry.
	RestartPhase func(ctx context.Context) error

	// Notify is an optional outward notification hook (best-effort).
	Notify func(ctx context.Context, result string)
}

// CompletionTool handles the completion signal: the only trigger into the
// phase decision states. It surfaces the completion text, gates an optional
// command behind approval, classifies the plan state, and collects
// feedback.
type CompletionTool struct {
	caps      Capabilities
	msgState  *state.Handler
	taskState *state.TaskState
	tracker   *phase.Tracker
}

// NewCompletionTool creates the completion handler. tracker may be nil for
// single-shot tasks.
func NewCompletionTool(caps Capabilities, msgState *state.Handler, taskState *state.TaskState, tracker *phase.Tracker) *CompletionTool {
	return &CompletionTool{caps: caps, msgState: msgState, taskState: taskState, tracker: tracker}
}

func (t *CompletionTool) Name() string { return "attempt_completion" }

func (t *CompletionTool) Description() string {
	return "Present the result of the completed work to the user. Optionally provide a shell command to demonstrate the result."
}

func (t *CompletionTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"result": map[string]any{
				"type":        "string",
				"description": "The final result of the work, stated completely.",
			},
			"command": map[string]any{
				"type":        "string",
				"description": "Optional shell command to demonstrate the result.",
			},
		},
		"required": []string{"result"},
	}
}

// Execute runs the completion state machine. It returns the tool payload
// for the agent's next turn: empty when the user accepted the result,
// otherwise packaged feedback (and any approved command output).
func (t *CompletionTool) Execute(ctx context.Context, params map[string]any) (string, error) {
	result := GetString(params, "result", "")
	command := GetString(params, "command", "")

	if result == "" {
		t.taskState.RecordMistake()
		return "Missing required parameter: result", nil
	}
	t.taskState.RecordValidCall()
	t.taskState.PhaseFinished = true

	if t.caps.Notify != nil {
		t.caps.Notify(ctx, result)
	}

	var commandOutput string
	if command != "" {
		if err := t.surfaceCompletion(ctx, result); err != nil {
			return "", err
		}

		resp, err := t.caps.Ask(ctx, state.AskCommand, command)
		if err != nil {
			return "", err
		}
		if resp.Response != ui.ResponseYes {
			// Rejection cancels only this action, never the task.
			return "The user denied the command execution.", nil
		}

		rejected, out, err := t.caps.ExecuteCommand(ctx, command)
		if err != nil {
			return "", fmt.Errorf("execute command: %w", err)
		}
		if rejected {
			t.taskState.DidRejectTool = true
			return out, nil
		}
		commandOutput = out
	} else {
		if err := t.surfaceCompletion(ctx, result); err != nil {
			return "", err
		}
	}

	action := phase.ActionNone
	if t.tracker != nil {
		t.tracker.MarkCurrentComplete()
		action = t.tracker.CompletionAction()
	}

	switch action {
	case phase.ActionAllComplete:
		return t.handleAllPhasesComplete(ctx, commandOutput)
	case phase.ActionPartialComplete:
		return t.handlePartialPhasesComplete(ctx, commandOutput)
	default:
		feedback, images, files, err := t.collectFeedback(ctx)
		if err != nil {
			return "", err
		}
		return packageToolResult(commandOutput, feedback, images, files), nil
	}
}

// surfaceCompletion says the completion text, checkpoints at the event's
// timestamp, and flags the event if the workspace has pending changes.
func (t *CompletionTool) surfaceCompletion(ctx context.Context, result string) error {
	ts, err := t.caps.Say(ctx, state.SayCompletionResult, result, ui.SayOptions{})
	if err != nil {
		return err
	}
	if err := t.caps.SaveCheckpoint(ctx, true, ts); err != nil {
		slog.Warn("completion checkpoint failed", "error", err)
	}
	t.flagPendingChanges(ctx)
	return nil
}

// flagPendingChanges appends the changes marker to the last completion
// event when the checkpoint collaborator reports new workspace changes.
func (t *CompletionTool) flagPendingChanges(ctx context.Context) {
	if !t.caps.HasNewWorkspaceChanges(ctx) {
		return
	}
	idx := t.msgState.FindLastEvent(func(ev state.Event) bool {
		return ev.Say == state.SayCompletionResult
	})
	if idx == -1 {
		return
	}
	ev := t.msgState.Events()[idx]
	if strings.HasSuffix(ev.Text, state.CompletionResultChangesFlag) {
		return
	}
	text := ev.Text + state.CompletionResultChangesFlag
	if err := t.msgState.UpdateEvent(idx, state.EventPatch{Text: &text}); err != nil {
		slog.Warn("failed to flag completion event", "error", err)
	}
}

// handleAllPhasesComplete asks whether to retry the final phase; otherwise
// reports overall completion. Both non-retry branches fall through to
// feedback collection.
func (t *CompletionTool) handleAllPhasesComplete(ctx context.Context, commandOutput string) (string, error) {
	shouldRetry, err := t.askApproval(ctx, state.AskFinalRetry, "All phases are complete. Retry the final phase?")
	if err != nil {
		return "", err
	}

	if shouldRetry && t.tracker.CanRetry() {
		if _, err := t.caps.Say(ctx, state.SayText, "Retrying the current phase.", ui.SayOptions{}); err != nil {
			return "", err
		}
		t.tracker.Retry()
		if t.caps.RestartPhase != nil {
			if err := t.caps.RestartPhase(ctx); err != nil {
				return "", err
			}
		}
		if err := t.caps.SaveCheckpoint(ctx, false, 0); err != nil {
			slog.Warn("retry checkpoint failed", "error", err)
		}
		return withCommandOutput(commandOutput, "The user chose to retry the final phase."), nil
	}

	if shouldRetry {
		if _, err := t.caps.Say(ctx, state.SayText, t.tracker.RetryLimitMessage(), ui.SayOptions{}); err != nil {
			return "", err
		}
	} else {
		if _, err := t.caps.Say(ctx, state.SayText, "All phases are complete.", ui.SayOptions{}); err != nil {
			return "", err
		}
	}
	feedback, images, files, err := t.collectFeedback(ctx)
	if err != nil {
		return "", err
	}
	return packageToolResult(commandOutput, feedback, images, files), nil
}

// handlePartialPhasesComplete asks whether to proceed; a decline offers a
// retry under the same budget rule, and an exhausted budget force-advances
// rather than looping forever.
func (t *CompletionTool) handlePartialPhasesComplete(ctx context.Context, commandOutput string) (string, error) {
	proceed, err := t.askApproval(ctx, state.AskProceed, "Phase complete. Proceed to the next phase?")
	if err != nil {
		return "", err
	}

	if proceed {
		if t.tracker.HasNext() {
			t.tracker.Advance()
		}
		if err := t.caps.SaveCheckpoint(ctx, false, 0); err != nil {
			slog.Warn("phase checkpoint failed", "error", err)
		}
		return withCommandOutput(commandOutput, "The user approved proceeding to the next phase."), nil
	}

	shouldRetry, err := t.askApproval(ctx, state.AskRetry, "Retry the current phase instead?")
	if err != nil {
		return "", err
	}

	var note string
	switch {
	case shouldRetry && t.tracker.CanRetry():
		if _, err := t.caps.Say(ctx, state.SayText, "Retrying the current phase.", ui.SayOptions{}); err != nil {
			return "", err
		}
		t.tracker.Retry()
		if t.caps.RestartPhase != nil {
			if err := t.caps.RestartPhase(ctx); err != nil {
				return "", err
			}
		}
		note = "The user chose to retry the current phase."
	case shouldRetry:
		if _, err := t.caps.Say(ctx, state.SayText, t.tracker.RetryLimitMessage()+" Moving to the next phase.", ui.SayOptions{}); err != nil {
			return "", err
		}
		t.tracker.Advance()
		note = "The retry limit was reached; the task moved to the next phase."
	default:
		t.tracker.Advance()
		note = "The user declined a retry; the task moved to the next phase."
	}
	if err := t.caps.SaveCheckpoint(ctx, false, 0); err != nil {
		slog.Warn("phase checkpoint failed", "error", err)
	}
	return withCommandOutput(commandOutput, note), nil
}

// collectFeedback blocks for free-form human input. An accepting response
// ends the exchange with empty output; anything else is recorded, a
// checkpoint is taken, and the feedback is returned for the agent's next
// turn.
func (t *CompletionTool) collectFeedback(ctx context.Context) (string, []string, []string, error) {
	resp, err := t.caps.Ask(ctx, state.AskCompletionResult, "")
	if err != nil {
		return "", nil, nil, err
	}
	if resp.Response == ui.ResponseYes {
		return "", nil, nil, nil
	}

	if _, err := t.caps.Say(ctx, state.SayUserFeedback, resp.Text, ui.SayOptions{Images: resp.Images, Files: resp.Files}); err != nil {
		return "", nil, nil, err
	}
	if err := t.caps.SaveCheckpoint(ctx, false, 0); err != nil {
		slog.Warn("feedback checkpoint failed", "error", err)
	}
	return resp.Text, resp.Images, resp.Files, nil
}

func (t *CompletionTool) askApproval(ctx context.Context, kind, text string) (bool, error) {
	resp, err := t.caps.Ask(ctx, kind, text)
	if err != nil {
		return false, err
	}
	return resp.Response == ui.ResponseYes, nil
}

// withCommandOutput prefixes a plain tool response with approved command
// output, if any.
func withCommandOutput(commandOutput, note string) string {
	if commandOutput == "" {
		return note
	}
	return "Command output:\n" + commandOutput + "\n\n" + note
}

// packageToolResult assembles the feedback-bearing tool payload.
func packageToolResult(commandOutput, feedback string, images, files []string) string {
	var b strings.Builder
	if commandOutput != "" {
		b.WriteString("Command output:\n")
		b.WriteString(commandOutput)
		b.WriteString("\n\n")
	}
	if feedback != "" {
		fmt.Fprintf(&b, "The user has provided feedback on the results. Consider their input to continue the task, and then attempt completion again.\n<feedback>\n%s\n</feedback>", feedback)
		for _, img := range images {
			fmt.Fprintf(&b, "\n[image] %s", img)
		}
		for _, f := range files {
			fmt.Fprintf(&b, "\n[file] %s", f)
		}
	}
	return b.String()
}
