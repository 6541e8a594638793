// Package notify delivers outward task notifications. Delivery is
// best-effort: failures are logged and never interrupt the task.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/taskloom/taskloom/internal/config"
)

// Notifier announces task milestones to an external channel.
type Notifier interface {
	CompletionResult(ctx context.Context, taskID, result string)
}

// SlackNotifier posts milestone messages to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier creates a notifier for the configured webhook. Returns
// nil (meaning: no notifications) when notifications are disabled or no
// webhook is set.
func NewSlackNotifier(cfg config.NotifyConfig) *SlackNotifier {
	if !cfg.Enabled || cfg.SlackWebhookURL == "" {
		return nil
	}
	return &SlackNotifier{
		webhookURL: cfg.SlackWebhookURL,
		post:       slack.PostWebhookContext,
	}
}

// CompletionResult announces a completion signal.
func (n *SlackNotifier) CompletionResult(ctx context.Context, taskID, result string) {
	if n == nil {
		return
	}
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("Task %s reported completion:\n%s", taskID, result),
	}
	if err := n.post(ctx, n.webhookURL, msg); err != nil {
		slog.Warn("slack notification failed", "task", taskID, "error", err)
	}
}
