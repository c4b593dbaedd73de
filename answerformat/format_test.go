package answerformat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONObject(t *testing.T) {
	assert.True(t, Matches(JSONObject, `{"ok":true}`))

	err := Validate(JSONObject, "[1,2,3]")
	assert.ErrorIs(t, err, ErrJSONNotObject)

	err = Validate(JSONObject, "not-json")
	var parseErr *JSONParseError
	require.True(t, errors.As(err, &parseErr))
	assert.NotEmpty(t, parseErr.Error())
}

func TestMarkdownBullets(t *testing.T) {
	assert.True(t, Matches(MarkdownBullets, "- one\n- two"))
	assert.True(t, Matches(MarkdownBullets, "  - indented\n\n- two\n"))

	assert.ErrorIs(t, Validate(MarkdownBullets, "  \n \n"), ErrEmptyAnswer)

	err := Validate(MarkdownBullets, "- one\nnot bullet\n- two\n  * star")
	var lines *NonBulletLinesError
	require.True(t, errors.As(err, &lines))
	assert.Equal(t, []string{"not bullet", "* star"}, lines.Lines)
}

func TestPlainText(t *testing.T) {
	assert.True(t, Matches(PlainText, "anything at all"))
	assert.ErrorIs(t, Validate(PlainText, "   "), ErrEmptyAnswer)
	assert.False(t, PlainText.Structured())
	assert.True(t, JSONObject.Structured())
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		err  bool
	}{
		{"", PlainText, false},
		{"plain_text", PlainText, false},
		{" JSON_OBJECT ", JSONObject, false},
		{"markdown_bullets", MarkdownBullets, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestInstructionsMentionFormat(t *testing.T) {
	assert.Contains(t, Instructions(JSONObject, ErrJSONNotObject), "JSON object")
	assert.Contains(t, Instructions(MarkdownBullets, nil), `"- "`)
}
