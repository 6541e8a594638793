package ui

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBrokerRoundtrip(t *testing.T) {
	b := NewBroker()
	id := b.Create(ResponseMessage, "pick one")

	go func() {
		time.Sleep(10 * time.Millisecond)
		if err := b.Respond(id, AskResponse{Response: ResponseMessage, Text: "option a"}); err != nil {
			t.Errorf("Respond error: %v", err)
		}
	}()

	resp, err := b.Wait(context.Background(), id)
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if resp.Text != "option a" {
		t.Errorf("expected option a, got %q", resp.Text)
	}

	// Question is gone after delivery.
	if err := b.Respond(id, AskResponse{}); err == nil {
		t.Error("expected error responding to answered question")
	}
}

func TestBrokerWaitCancelled(t *testing.T) {
	b := NewBroker()
	id := b.Create("followup", "q")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Wait(ctx, id); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(b.Pending()) != 0 {
		t.Error("expected cleanup after cancelled wait")
	}
}

func TestBrokerUnknownID(t *testing.T) {
	b := NewBroker()
	if _, err := b.Wait(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown id")
	}
}

func TestBrokerPending(t *testing.T) {
	b := NewBroker()
	b.Create("followup", "q1")
	b.Create("command", "q2")

	if got := len(b.Pending()); got != 2 {
		t.Errorf("expected 2 pending, got %d", got)
	}
}
