package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type extractTarget struct {
	Finding    string  `json:"finding"`
	Confidence float64 `json:"confidence"`
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
		ok   bool
	}{
		{
			name: "clean object",
			text: `{"finding": "ok", "confidence": 0.9}`,
			want: `{"finding": "ok", "confidence": 0.9}`,
			ok:   true,
		},
		{
			name: "clean array",
			text: `[1, 2, 3]`,
			want: `[1, 2, 3]`,
			ok:   true,
		},
		{
			name: "fenced with json tag",
			text: "Here is the result:\n```json\n{\"finding\": \"fenced\"}\n```\nHope that helps!",
			want: `{"finding": "fenced"}`,
			ok:   true,
		},
		{
			name: "fenced without tag",
			text: "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
			ok:   true,
		},
		{
			name: "embedded in prose",
			text: `Sure! The analysis is {"finding": "embedded", "confidence": 0.5} as requested.`,
			want: `{"finding": "embedded", "confidence": 0.5}`,
			ok:   true,
		},
		{
			name: "array embedded in prose",
			text: `The list: ["a", "b"] -- done.`,
			want: `["a", "b"]`,
			ok:   true,
		},
		{
			name: "empty input",
			text: "",
			ok:   false,
		},
		{
			name: "whitespace only",
			text: "   \n\t  ",
			ok:   false,
		},
		{
			name: "no json at all",
			text: "I am unable to answer that question.",
			ok:   false,
		},
		{
			name: "broken json everywhere",
			text: "```json\n{\"finding\": \n```and also {not valid}",
			ok:   false,
		},
		{
			name: "nested braces in prose",
			text: `prefix {"outer": {"inner": 1}} suffix`,
			want: `{"outer": {"inner": 1}}`,
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := ExtractJSON(tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.JSONEq(t, tt.want, string(raw))
			} else {
				assert.Nil(t, raw)
			}
		})
	}
}

func TestExtractInto(t *testing.T) {
	t.Run("typed extraction from fenced block", func(t *testing.T) {
		v, ok := ExtractInto[extractTarget]("```json\n{\"finding\": \"x\", \"confidence\": 0.7}\n```")
		require.True(t, ok)
		assert.Equal(t, "x", v.Finding)
		assert.InDelta(t, 0.7, v.Confidence, 1e-9)
	})

	t.Run("valid json wrong shape", func(t *testing.T) {
		// A bare number parses as JSON but not into the struct.
		v, ok := ExtractInto[extractTarget]("42")
		assert.False(t, ok)
		assert.Nil(t, v)
	})
}

func TestExtractIntoOrError(t *testing.T) {
	t.Run("failure carries context and truncated sample", func(t *testing.T) {
		long := "garbage " + strings.Repeat("x", 500)
		_, err := ExtractIntoOrError[extractTarget](long, "skeptic analysis")
		require.Error(t, err)

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "skeptic analysis", pe.Context)
		assert.LessOrEqual(t, len(pe.Sample), 200)
		assert.Contains(t, err.Error(), "skeptic analysis")
	})

	t.Run("success returns value", func(t *testing.T) {
		v, err := ExtractIntoOrError[extractTarget](`{"finding": "ok"}`, "test")
		require.NoError(t, err)
		assert.Equal(t, "ok", v.Finding)
	})
}
