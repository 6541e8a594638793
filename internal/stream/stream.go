// Package stream turns a live model token stream into trustworthy data:
// it aggregates chunks in arrival order and extracts a single well-formed
// JSON object from noisy surrounding text, repairing unescaped literal
// newlines inside string values.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/taskloom/taskloom/internal/provider"
)

// ErrMalformedModelOutput reports that no parseable JSON object could be
// recovered from the model's output. Callers must not assume partial
// recovery.
var ErrMalformedModelOutput = errors.New("malformed model output")

// Collect drains the chunk channel fully, concatenating text fragments in
// arrival order. This is the only place fragments are combined: no
// reordering, no deduplication. Usage chunks are surfaced via the returned
// Usage pointer (nil if the stream carried none); other chunk kinds are
// ignored.
func Collect(ctx context.Context, ch <-chan provider.Chunk) (string, *provider.Usage, error) {
	return CollectProgress(ctx, ch, nil)
}

// CollectProgress is Collect with a progress callback invoked after every
// text fragment with the text buffered so far. Used for streaming partial
// content to the UI while the stream is still open.
func CollectProgress(ctx context.Context, ch <-chan provider.Chunk, progress func(buffered string)) (string, *provider.Usage, error) {
	var buf strings.Builder
	var usage *provider.Usage
	for {
		select {
		case chunk, ok := <-ch:
			if !ok {
				return buf.String(), usage, nil
			}
			switch chunk.Kind {
			case provider.ChunkText:
				buf.WriteString(chunk.Text)
				if progress != nil {
					progress(buf.String())
				}
			case provider.ChunkUsage:
				usage = chunk.Usage
			}
		case <-ctx.Done():
			return buf.String(), usage, ctx.Err()
		}
	}
}

// ExtractJSONObject locates the candidate JSON document in raw: the span
// from the first '{' to the last '}', inclusive. The widest span is
// deliberate — it tolerates leading and trailing prose around the object;
// a non-greedy search would clip objects whose string values contain '}'.
func ExtractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("%w: no JSON object found", ErrMalformedModelOutput)
	}
	return raw[start : end+1], nil
}

// EscapeNewlinesInJSONStrings rewrites literal newline characters that occur
// inside string literals of JSON-looking text to the two-character escape
// sequence, so the text can be fed to a strict parser. Model output
// frequently contains raw newlines inside string values.
//
// The scan toggles an in-string flag on every double quote not immediately
// preceded by a backslash. Characters outside string literals pass through
// unchanged. Already-escaped text is a fixed point: applying this twice
// yields the same result. It fixes nothing but newlines — trailing commas,
// truncation and the like still surface as parse failures.
func EscapeNewlinesInJSONStrings(raw string) string {
	inString := false
	var result strings.Builder
	result.Grow(len(raw))

	for i := 0; i < len(raw); i++ {
		ch := raw[i]

		if ch == '"' && (i == 0 || raw[i-1] != '\\') {
			inString = !inString
			result.WriteByte(ch)
			continue
		}

		if ch == '\n' && inString {
			result.WriteString(`\n`)
			continue
		}

		result.WriteByte(ch)
	}

	return result.String()
}

// DecodeObject extracts, repairs and unmarshals the single JSON object in
// raw into v. Any failure is reported as ErrMalformedModelOutput.
func DecodeObject(raw string, v any) error {
	candidate, err := ExtractJSONObject(raw)
	if err != nil {
		return err
	}
	repaired := EscapeNewlinesInJSONStrings(candidate)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	return nil
}
