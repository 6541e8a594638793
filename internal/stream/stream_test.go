package stream

import (
	"context"
	"errors"
	"testing"

	"github.com/taskloom/taskloom/internal/provider"
)

func chunkChannel(texts ...string) <-chan provider.Chunk {
	ch := make(chan provider.Chunk, len(texts))
	for _, s := range texts {
		ch <- provider.Chunk{Kind: provider.ChunkText, Text: s}
	}
	close(ch)
	return ch
}

func TestCollectConcatenatesInOrder(t *testing.T) {
	got, _, err := Collect(context.Background(), chunkChannel("a", "b", "c", "b"))
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	// No deduplication, no reordering.
	if got != "abcb" {
		t.Errorf("expected abcb, got %q", got)
	}
}

func TestCollectSurfacesUsage(t *testing.T) {
	ch := make(chan provider.Chunk, 2)
	ch <- provider.Chunk{Kind: provider.ChunkText, Text: "hi"}
	ch <- provider.Chunk{Kind: provider.ChunkUsage, Usage: &provider.Usage{PromptTokens: 3, CompletionTokens: 1}}
	close(ch)

	text, usage, err := Collect(context.Background(), ch)
	if err != nil {
		t.Fatalf("Collect error: %v", err)
	}
	if text != "hi" {
		t.Errorf("expected hi, got %q", text)
	}
	if usage == nil || usage.PromptTokens != 3 {
		t.Errorf("expected usage, got %+v", usage)
	}
}

func TestCollectProgressSeesGrowingBuffer(t *testing.T) {
	var snapshots []string
	_, _, err := CollectProgress(context.Background(), chunkChannel("x", "y"), func(buffered string) {
		snapshots = append(snapshots, buffered)
	})
	if err != nil {
		t.Fatalf("CollectProgress error: %v", err)
	}
	if len(snapshots) != 2 || snapshots[0] != "x" || snapshots[1] != "xy" {
		t.Errorf("unexpected snapshots: %v", snapshots)
	}
}

func TestCollectCancelled(t *testing.T) {
	ch := make(chan provider.Chunk) // never closed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Collect(ctx, ch)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExtractJSONObjectTakesWidestSpan(t *testing.T) {
	raw := `prose before {"a":{"b":1}} trailing } noise`
	got, err := ExtractJSONObject(raw)
	if err != nil {
		t.Fatalf("ExtractJSONObject error: %v", err)
	}
	// First '{' to last '}' — trailing brace is included by design.
	if got != `{"a":{"b":1}} trailing }` {
		t.Errorf("unexpected span: %q", got)
	}
}

func TestExtractJSONObjectNoObject(t *testing.T) {
	if _, err := ExtractJSONObject("no braces here"); !errors.Is(err, ErrMalformedModelOutput) {
		t.Errorf("expected ErrMalformedModelOutput, got %v", err)
	}
	if _, err := ExtractJSONObject("} reversed {"); !errors.Is(err, ErrMalformedModelOutput) {
		t.Errorf("expected ErrMalformedModelOutput for reversed braces, got %v", err)
	}
}

func TestEscapeNewlines(t *testing.T) {
	raw := "{\"a\":1,\n\"b\":\"line1\nline2\"}"
	got := EscapeNewlinesInJSONStrings(raw)
	// Newline between members is structural whitespace and stays; only the
	// newline inside the string value is escaped.
	want := "{\"a\":1,\n\"b\":\"line1\\nline2\"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEscapeNewlinesIdempotent(t *testing.T) {
	raw := "{\"b\":\"line1\nline2\"}"
	once := EscapeNewlinesInJSONStrings(raw)
	twice := EscapeNewlinesInJSONStrings(once)
	if once != twice {
		t.Errorf("repair not idempotent: %q vs %q", once, twice)
	}
}

func TestEscapeNewlinesRespectsEscapedQuotes(t *testing.T) {
	// The quote after the backslash must not toggle the in-string state.
	raw := "{\"b\":\"say \\\"hi\nthere\\\"\"}"
	got := EscapeNewlinesInJSONStrings(raw)
	want := "{\"b\":\"say \\\"hi\\nthere\\\"\"}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestDecodeObjectScenario(t *testing.T) {
	raw := "noise {\"a\":1,\n\"b\":\"line1\nline2\"} trailing"
	var out struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	if err := DecodeObject(raw, &out); err != nil {
		t.Fatalf("DecodeObject error: %v", err)
	}
	if out.A != 1 {
		t.Errorf("expected a=1, got %d", out.A)
	}
	// The parser restores the actual newline from the escape.
	if out.B != "line1\nline2" {
		t.Errorf("expected restored newline, got %q", out.B)
	}
}

func TestDecodeObjectOtherDefectsStillFail(t *testing.T) {
	var out map[string]any
	err := DecodeObject(`{"a":1,}`, &out) // trailing comma is not repaired
	if !errors.Is(err, ErrMalformedModelOutput) {
		t.Errorf("expected ErrMalformedModelOutput, got %v", err)
	}
}
