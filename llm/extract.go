package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// sampleLimit bounds how much offending text a ParseError carries.
const sampleLimit = 200

// ParseError reports that JSON extraction exhausted every strategy.
type ParseError struct {
	Context string // caller-supplied label, e.g. "skeptic analysis"
	Sample  string // truncated offending text
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse JSON from %s: %q", e.Context, e.Sample)
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON pulls a JSON value out of free-form model output.
//
// Model responses are not guaranteed to be well-formed: they wrap JSON in
// markdown fences, prepend prose, or append trailing commentary. Strategies,
// in order:
//
//  1. parse the trimmed text directly
//  2. parse the interior of the first fenced code block
//  3. parse from the first '{' to the last '}' (then '[' .. ']')
//
// Returns the raw JSON and true on success, nil and false when every
// strategy fails. It never panics.
func ExtractJSON(text string) (json.RawMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	if raw, ok := tryParse(text); ok {
		return raw, true
	}

	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 {
		if raw, ok := tryParse(strings.TrimSpace(m[1])); ok {
			return raw, true
		}
	}

	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		start := strings.Index(text, pair[0])
		if start < 0 {
			continue
		}
		end := strings.LastIndex(text, pair[1])
		if end <= start {
			continue
		}
		if raw, ok := tryParse(text[start : end+1]); ok {
			return raw, true
		}
	}

	return nil, false
}

func tryParse(candidate string) (json.RawMessage, bool) {
	if !json.Valid([]byte(candidate)) {
		return nil, false
	}
	return json.RawMessage(candidate), true
}

// ExtractInto extracts JSON from text and unmarshals it into T.
// Returns nil and false if no strategy yields JSON that fits T.
func ExtractInto[T any](text string) (*T, bool) {
	raw, ok := ExtractJSON(text)
	if !ok {
		return nil, false
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return &v, true
}

// ExtractIntoOrError is the failing variant of [ExtractInto], for callers
// with no sensible fallback. The returned *ParseError carries the context
// label and a truncated sample of the offending text.
func ExtractIntoOrError[T any](text, context string) (*T, error) {
	v, ok := ExtractInto[T](text)
	if !ok {
		return nil, &ParseError{Context: context, Sample: truncate(text, sampleLimit)}
	}
	return v, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
