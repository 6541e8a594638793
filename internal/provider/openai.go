package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider implements Transport using the OpenAI-compatible streaming
// API. It works with OpenRouter, OpenAI, and other compatible providers.
type OpenAIProvider struct {
	apiKey       string
	apiBase      string
	defaultModel string
	maxTokens    int
	temperature  float64
	httpClient   *http.Client
}

// NewOpenAIProvider creates a new OpenAI-compatible streaming provider.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string, maxTokens int, temperature float64, timeout time.Duration) *OpenAIProvider {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	if defaultModel == "" {
		defaultModel = "anthropic/claude-sonnet-4-5"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &OpenAIProvider{
		apiKey:       apiKey,
		apiBase:      strings.TrimSuffix(apiBase, "/"),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
		temperature:  temperature,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DefaultModel returns the configured default model.
func (p *OpenAIProvider) DefaultModel() string {
	return p.defaultModel
}

// streamEvent mirrors one SSE payload from /chat/completions.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// StreamMessage opens a streaming chat completion and returns a channel of
// chunks. The channel is closed when the stream ends or ctx is cancelled.
func (p *OpenAIProvider) StreamMessage(ctx context.Context, system string, messages []Message) (<-chan Chunk, error) {
	wireMessages := make([]Message, 0, len(messages)+1)
	if system != "" {
		wireMessages = append(wireMessages, Message{Role: "system", Content: system})
	}
	wireMessages = append(wireMessages, messages...)

	body := map[string]any{
		"model":          p.defaultModel,
		"messages":       wireMessages,
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
	}
	if p.maxTokens > 0 {
		body["max_tokens"] = p.maxTokens
	}
	if p.temperature > 0 {
		body["temperature"] = p.temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var ev streamEvent
			if err := json.Unmarshal([]byte(payload), &ev); err != nil {
				slog.Debug("skipping undecodable stream event", "error", err)
				continue
			}
			if ev.Usage != nil {
				if !send(ctx, out, Chunk{Kind: ChunkUsage, Usage: ev.Usage}) {
					return
				}
			}
			if len(ev.Choices) > 0 && ev.Choices[0].Delta.Content != "" {
				if !send(ctx, out, Chunk{Kind: ChunkText, Text: ev.Choices[0].Delta.Content}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			slog.Warn("stream read error", "error", err)
		}
	}()

	return out, nil
}

// send delivers a chunk unless the context is cancelled. Cancellation closes
// the stream from the consumer side.
func send(ctx context.Context, out chan<- Chunk, c Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
