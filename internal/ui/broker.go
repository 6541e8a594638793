package ui

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// PendingQuestion is a question awaiting a human answer.
type PendingQuestion struct {
	ID        string
	Kind      string
	Text      string
	CreatedAt time.Time
}

// Broker decouples the task goroutine from whatever front-end collects
// human answers. The task registers a question and blocks in Wait; the
// front-end lists pending questions and delivers answers via Respond.
type Broker struct {
	mu      sync.Mutex
	pending map[string]chan AskResponse
	meta    map[string]PendingQuestion
}

// NewBroker creates an answer broker.
func NewBroker() *Broker {
	return &Broker{
		pending: make(map[string]chan AskResponse),
		meta:    make(map[string]PendingQuestion),
	}
}

// Create registers a new question and returns its ID.
func (b *Broker) Create(kind, text string) string {
	id := newQuestionID()
	ch := make(chan AskResponse, 1)

	b.mu.Lock()
	b.pending[id] = ch
	b.meta[id] = PendingQuestion{ID: id, Kind: kind, Text: text, CreatedAt: time.Now()}
	b.mu.Unlock()

	return id
}

// Wait blocks until the question is answered or the context is cancelled.
func (b *Broker) Wait(ctx context.Context, id string) (AskResponse, error) {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return AskResponse{}, fmt.Errorf("no pending question: %s", id)
	}

	select {
	case resp := <-ch:
		b.cleanup(id)
		return resp, nil
	case <-ctx.Done():
		b.cleanup(id)
		return AskResponse{}, ctx.Err()
	}
}

// Respond delivers an answer for a pending question.
func (b *Broker) Respond(id string, resp AskResponse) error {
	b.mu.Lock()
	ch, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pending question: %s", id)
	}

	// Non-blocking send (channel is buffered with size 1)
	select {
	case ch <- resp:
	default:
	}
	return nil
}

// Pending lists questions still awaiting an answer.
func (b *Broker) Pending() []PendingQuestion {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]PendingQuestion, 0, len(b.meta))
	for _, q := range b.meta {
		out = append(out, q)
	}
	return out
}

func (b *Broker) cleanup(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	delete(b.meta, id)
	b.mu.Unlock()
}

// BrokerInteractor adapts a Broker into an Interactor for front-ends that
// collect answers asynchronously (anything that is not a terminal). Says are
// forwarded to the sink; asks block on the broker.
type BrokerInteractor struct {
	broker *Broker
	sink   func(ctx context.Context, kind, text string, opts SayOptions) error
}

// NewBrokerInteractor wraps broker. sink may be nil to discard says.
func NewBrokerInteractor(broker *Broker, sink func(ctx context.Context, kind, text string, opts SayOptions) error) *BrokerInteractor {
	return &BrokerInteractor{broker: broker, sink: sink}
}

func (bi *BrokerInteractor) Ask(ctx context.Context, kind, text string) (AskResponse, error) {
	id := bi.broker.Create(kind, text)
	return bi.broker.Wait(ctx, id)
}

func (bi *BrokerInteractor) Say(ctx context.Context, kind, text string, opts SayOptions) error {
	if bi.sink == nil {
		return nil
	}
	return bi.sink(ctx, kind, text, opts)
}

func newQuestionID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err == nil {
		return hex.EncodeToString(buf[:])
	}
	return fmt.Sprintf("q-%d", time.Now().UnixNano())
}
