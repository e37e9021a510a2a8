package jsonrepair_test

import (
	"encoding/json"
	"testing"

	"talk-trainer-server/internal/llm/jsonrepair"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepair_MalformedFixtures(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "already valid",
			raw:  `{"content":"hello"}`,
			want: `{"content":"hello"}`,
		},
		{
			name: "fenced with language tag",
			raw:  "```json\n{\"content\": \"hi\"}\n```",
			want: `{"content":"hi"}`,
		},
		{
			name: "fenced without language tag",
			raw:  "```\n{\"a\": 1}\n```",
			want: `{"a":1}`,
		},
		{
			name: "prose around the object",
			raw:  `Sure! Here is the JSON you asked for: {"a": 1} Hope that helps.`,
			want: `{"a":1}`,
		},
		{
			name: "unterminated string",
			raw:  `{"content": "hello`,
			want: `{"content":"hello"}`,
		},
		{
			name: "missing closing braces",
			raw:  `{"a": {"b": [1, 2`,
			want: `{"a":{"b":[1,2]}}`,
		},
		{
			name: "trailing comma at end",
			raw:  `{"a": 1,`,
			want: `{"a":1}`,
		},
		{
			name: "dangling comma before closer",
			raw:  `{"a": 1,}`,
			want: `{"a":1}`,
		},
		{
			name: "comma inside string survives",
			raw:  `{"a": ",}"}`,
			want: `{"a":",}"}`,
		},
		{
			name: "escaped quote inside unterminated string",
			raw:  `{"a": "he said \"hi`,
			want: `{"a":"he said \"hi"}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := jsonrepair.Repair(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired text must parse")
		})
	}
}

// repair(repair(x)) == repair(x) for arbitrary input, including garbage that
// cannot be repaired.
func TestRepair_Idempotent(t *testing.T) {
	inputs := []string{
		`{"content":"hello"}`,
		`{"content": "hello`,
		"```json\n{\"a\": [1,\n```",
		`no json here at all`,
		``,
		`{{{`,
		`{"a": bareword}`,
		`]["`,
	}
	for _, raw := range inputs {
		once := jsonrepair.Repair(raw)
		twice := jsonrepair.Repair(once)
		assert.Equal(t, once, twice, "input: %q", raw)
	}
}

func TestExtract(t *testing.T) {
	var v struct {
		Content string `json:"content"`
	}
	err := jsonrepair.Extract("```json\n{\"content\": \"hi\"\n```", &v)
	require.NoError(t, err)
	assert.Equal(t, "hi", v.Content)
}

func TestExtractOr_FallsBackToDefault(t *testing.T) {
	var v struct {
		Content string `json:"content"`
	}
	jsonrepair.ExtractOr("total garbage", &v, `{"content":"fallback"}`)
	assert.Equal(t, "fallback", v.Content)

	jsonrepair.ExtractOr(`{"content": "real`, &v, `{"content":"fallback"}`)
	assert.Equal(t, "real", v.Content)
}
