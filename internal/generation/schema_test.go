package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n```json\n{}\n```\n  ", "{}"},
		{"no trailing fence", "```json\n{\"a\": 1}", `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}

func TestDecodeInto(t *testing.T) {
	t.Parallel()

	var entry EntryResponse
	err := DecodeInto("```json\n{\"valid\": true, \"entry\": {\"title\": \"Aerith\", \"content\": \"A flower merchant.\", \"keywords\": [\"aerith\"]}}\n```", &entry)
	require.NoError(t, err)
	require.NotNil(t, entry.Entry)
	assert.True(t, entry.Valid)
	assert.Equal(t, "Aerith", entry.Entry.Title)

	var skipped EntryResponse
	err = DecodeInto(`{"valid": false, "reason": "navigation page"}`, &skipped)
	require.NoError(t, err)
	assert.False(t, skipped.Valid)
	assert.Equal(t, "navigation page", skipped.Reason)

	err = DecodeInto("", &entry)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	err = DecodeInto("the model rambled instead of emitting JSON", &entry)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestSchemasAreObjectShaped(t *testing.T) {
	t.Parallel()

	for name, schema := range map[string]*ResponseSchema{
		"selector":          SelectorSchema(),
		"entry":             EntrySchema(),
		"search params":     SearchParamsSchema(),
		"character card":    CharacterCardSchema(),
		"regenerated field": RegeneratedFieldSchema(),
		"character entries": CharacterEntriesSchema(),
	} {
		require.NotNil(t, schema, name)
		assert.Equal(t, "object", schema.Type, name)
		assert.NotEmpty(t, schema.Properties, name)
	}
}
