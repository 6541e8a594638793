// Package events mirrors the UI event log onto a Kafka topic so external
// consumers can follow task progress. The mirror is strictly best-effort:
// publish failures are logged and never affect the task.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/taskloom/taskloom/internal/config"
	"github.com/taskloom/taskloom/internal/state"
)

// Mirror publishes task events to Kafka.
type Mirror struct {
	writer *kafka.Writer
}

// NewMirror creates a mirror for the configured brokers. Returns nil
// (meaning: no mirroring) when events are disabled or unconfigured.
func NewMirror(cfg config.EventsConfig) *Mirror {
	if !cfg.Enabled || cfg.Brokers == "" || cfg.Topic == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &Mirror{writer: w}
}

// Publish mirrors one event, keyed by task so per-task ordering is kept.
func (m *Mirror) Publish(ctx context.Context, taskID string, ev state.Event) {
	if m == nil {
		return
	}
	value, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("failed to encode event for mirror", "task", taskID, "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(taskID),
		Value: value,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
		},
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.writer.WriteMessages(writeCtx, msg); err != nil {
		slog.Warn("failed to mirror event", "task", taskID, "error", err)
	}
}

// Close flushes and releases the underlying writer.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.writer.Close()
}
