// Package condense compacts long conversation histories into a rolling
// summary so the model's context stays bounded.
package condense

import (
	"context"
	"fmt"
	"strings"

	"github.com/taskloom/taskloom/internal/history"
	"github.com/taskloom/taskloom/internal/provider"
	"github.com/taskloom/taskloom/internal/stream"
)

// Condense summarizes turns into a numbered chronological list of at most
// tokenLimit tokens. priorSummary, if non-empty, is folded in so the rolling
// summary never loses earlier milestones.
func Condense(ctx context.Context, transport provider.Transport, priorSummary string, turns []history.Turn, tokenLimit int) (string, error) {
	system := fmt.Sprintf(`Summarize the following chat history for future context usage. Focus on retaining key information, user goals, decisions, important details, and resolved or unresolved issues.
Write the summary clearly in less than %d tokens.
The summary should be structured as a numbered list following the actual order the tasks were performed, and must prioritize any task-related information or instructions from the user.`, tokenLimit)

	var sb strings.Builder
	if priorSummary != "" {
		fmt.Fprintf(&sb, "For context, here is the previous task summary:\n%s\n\n", priorSummary)
	}
	sb.WriteString("Here is the recent chat history:\n")
	sb.WriteString(formatTurns(turns))
	sb.WriteString("\n\nOutput the result as a numbered list, representing each milestone or task in chronological order.")

	ch, err := transport.StreamMessage(ctx, system, []provider.Message{
		{Role: "user", Content: sb.String()},
	})
	if err != nil {
		return "", fmt.Errorf("start condense stream: %w", err)
	}
	text, _, err := stream.Collect(ctx, ch)
	if err != nil {
		return "", fmt.Errorf("collect condense stream: %w", err)
	}
	summary := strings.TrimSpace(text)
	if summary == "" {
		return "", fmt.Errorf("condense: %w", stream.ErrMalformedModelOutput)
	}
	return summary, nil
}

func formatTurns(turns []history.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, fmt.Sprintf("%s: %s", t.Role, t.Content))
	}
	return strings.Join(parts, "\n\n")
}
