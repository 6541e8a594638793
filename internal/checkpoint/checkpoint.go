// Package checkpoint snapshots workspace state at control-flow boundaries.
// The core issues exactly two calls: save, and a new-changes check.
package checkpoint

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Saver is the checkpoint collaborator. The core never retries these calls.
type Saver interface {
	// Save takes a durable snapshot. isCompletion marks snapshots taken at
	// a completion signal; messageTs (0 if unknown) ties the snapshot to a
	// UI event.
	Save(ctx context.Context, isCompletion bool, messageTs int64) error
	// HasNewWorkspaceChanges reports whether the workspace changed since
	// the last completion snapshot.
	HasNewWorkspaceChanges(ctx context.Context) bool
}

// GitTracker checkpoints a workspace by committing into its git repository.
type GitTracker struct {
	workDir            string
	lastCompletionHash string
}

// NewGitTracker creates a tracker for the given workspace. Returns an error
// if the directory is not inside a git work tree; callers record the message
// and continue without checkpoints.
func NewGitTracker(ctx context.Context, workDir string) (*GitTracker, error) {
	out, err := gitOutput(ctx, workDir, "rev-parse", "--is-inside-work-tree")
	if err != nil || strings.TrimSpace(out) != "true" {
		return nil, fmt.Errorf("workspace %s is not a git work tree", workDir)
	}
	t := &GitTracker{workDir: workDir}
	if head, err := gitOutput(ctx, workDir, "rev-parse", "HEAD"); err == nil {
		t.lastCompletionHash = strings.TrimSpace(head)
	}
	return t, nil
}

// Save stages everything and commits. An empty commit is allowed so that a
// checkpoint always exists at the boundary.
func (t *GitTracker) Save(ctx context.Context, isCompletion bool, messageTs int64) error {
	if _, err := gitOutput(ctx, t.workDir, "add", "-A"); err != nil {
		return fmt.Errorf("stage workspace: %w", err)
	}
	msg := "taskloom checkpoint"
	if isCompletion {
		msg = "taskloom completion checkpoint"
	}
	if messageTs > 0 {
		msg = fmt.Sprintf("%s (ts %d)", msg, messageTs)
	}
	if _, err := gitOutput(ctx, t.workDir, "commit", "--allow-empty", "-m", msg); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	if isCompletion {
		if head, err := gitOutput(ctx, t.workDir, "rev-parse", "HEAD"); err == nil {
			t.lastCompletionHash = strings.TrimSpace(head)
		}
	}
	return nil
}

// HasNewWorkspaceChanges reports uncommitted changes, or commits made since
// the last completion checkpoint.
func (t *GitTracker) HasNewWorkspaceChanges(ctx context.Context) bool {
	if out, err := gitOutput(ctx, t.workDir, "status", "--porcelain"); err == nil && strings.TrimSpace(out) != "" {
		return true
	}
	if t.lastCompletionHash == "" {
		return false
	}
	out, err := gitOutput(ctx, t.workDir, "rev-list", "--count", t.lastCompletionHash+"..HEAD")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) != "0"
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// Nop is a Saver that records nothing. Used when the workspace has no git
// repository or checkpoints are disabled.
type Nop struct{}

func (Nop) Save(ctx context.Context, isCompletion bool, messageTs int64) error { return nil }
func (Nop) HasNewWorkspaceChanges(ctx context.Context) bool                    { return false }
