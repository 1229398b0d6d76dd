package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestProperty_ExtractJSON_NeverPanics: for arbitrary input text, ExtractJSON
// returns either a valid JSON value or an explicit absence. It must not panic
// and must not return invalid JSON with ok=true.
func TestProperty_ExtractJSON_NeverPanics(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")

		raw, ok := ExtractJSON(text)
		if ok {
			require.True(t, json.Valid(raw), "ok=true must imply valid JSON")
		} else {
			require.Nil(t, raw)
		}
	})
}

// TestProperty_ExtractJSON_FencedRoundTrip: any JSON object placed inside a
// fenced block with surrounding prose is recovered exactly.
func TestProperty_ExtractJSON_FencedRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		obj := map[string]string{
			rapid.StringMatching(`[a-z]{1,10}`).Draw(rt, "key"): rapid.StringMatching(`[a-zA-Z0-9 .,]{0,40}`).Draw(rt, "value"),
		}
		encoded, err := json.Marshal(obj)
		require.NoError(t, err)

		prose := rapid.StringMatching(`[a-zA-Z0-9 .,!?]{0,60}`).Draw(rt, "prose")
		text := prose + "\n```json\n" + string(encoded) + "\n```\n" + prose

		raw, ok := ExtractJSON(text)
		require.True(t, ok)

		var got map[string]string
		require.NoError(t, json.Unmarshal(raw, &got))
		require.Equal(t, obj, got)
	})
}
