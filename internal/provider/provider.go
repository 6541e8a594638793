// Package provider implements the LLM transport boundary.
package provider

import (
	"context"
)

// Chunk kinds. The core only consumes text and usage; anything else on the
// wire is dropped by the transport before it reaches callers.
const (
	ChunkText  = "text"
	ChunkUsage = "usage"
)

// Chunk is one fragment of a streamed model response.
type Chunk struct {
	Kind  string
	Text  string
	Usage *Usage
}

// Message represents a conversation turn sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage information for one request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Transport is the interface for LLM API clients.
//
// StreamMessage opens exactly one stream per call. The returned channel is
// closed by the transport when the stream ends, errors out, or the context
// is cancelled; callers must drain it fully before proceeding.
type Transport interface {
	StreamMessage(ctx context.Context, system string, messages []Message) (<-chan Chunk, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}
