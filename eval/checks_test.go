package eval

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/answerformat"
)

func outcome(finalText string, calls ...[2]string) agent.Outcome {
	out := agent.Outcome{FinalText: finalText}
	for i, c := range calls {
		out.ToolCalls = append(out.ToolCalls, agent.ExecutedToolCall{
			ID:       string(rune('a' + i)),
			Tool:     c[0],
			Output:   json.RawMessage(c[1]),
			Attempts: 1,
		})
		out.Trace.ToolsUsed = append(out.Trace.ToolsUsed, c[0])
	}
	return out
}

func TestRequiredToolUsage(t *testing.T) {
	c := Case{ID: "c", Prompt: "p", RequiredTools: []string{"fetch_url", "search_notes"}}

	res := checkRequiredToolUsage(c, outcome("x", [2]string{"search_notes", `{}`}))
	assert.False(t, res.Passed)
	assert.Equal(t, "missing required tool calls: fetch_url", res.Detail)

	res = checkRequiredToolUsage(c, outcome("x",
		[2]string{"search_notes", `{}`}, [2]string{"fetch_url", `{}`}))
	assert.True(t, res.Passed)

	res = checkRequiredToolUsage(Case{ID: "c", Prompt: "p"}, outcome("x"))
	assert.True(t, res.Passed)
}

func TestNoInventedToolOutput(t *testing.T) {
	grounded := Case{ID: "c", Prompt: "Use fetch_url and summarize example.com", NoInventedToolOutput: true}
	fetched := [2]string{"fetch_url", `{"url":"https://example.com","status":200,"content":"Example Domain"}`}

	tests := []struct {
		name       string
		c          Case
		out        agent.Outcome
		wantPassed bool
		wantDetail string
	}{
		{
			name:       "disabled",
			c:          Case{ID: "c", Prompt: "p"},
			out:        outcome(`"Totally Invented" 9999`),
			wantPassed: true,
		},
		{
			name:       "no tool calls",
			c:          grounded,
			out:        outcome("anything"),
			wantDetail: "no tool calls were executed",
		},
		{
			name:       "grounded quote and number",
			c:          grounded,
			out:        outcome(`The page title is "example domain" and status 200.`, fetched),
			wantPassed: true,
		},
		{
			name:       "short quotes and numbers ignored",
			c:          grounded,
			out:        outcome(`It said "ok" about 42 times.`, fetched),
			wantPassed: true,
		},
		{
			name:       "unseen number",
			c:          grounded,
			out:        outcome("Status was 404 and title was Example Domain.", fetched),
			wantDetail: "numbers not found in tool outputs: 404",
		},
		{
			name:       "unseen quote",
			c:          grounded,
			out:        outcome(`The title is "Welcome Home".`, fetched),
			wantDetail: "quoted fragments not found in tool outputs: Welcome Home",
		},
		{
			name:       "unseen url",
			c:          grounded,
			out:        outcome("See (https://example.org/about).", fetched),
			wantDetail: "urls not found in tool outputs: https://example.org/about",
		},
		{
			name:       "url seen in output",
			c:          grounded,
			out:        outcome("Source: https://example.com.", fetched),
			wantPassed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := checkNoInventedToolOutput(tt.c, tt.out)
			assert.Equal(t, CheckNoInventedToolOutput, res.Name)
			assert.Equal(t, tt.wantPassed, res.Passed, res.Detail)
			if tt.wantDetail != "" {
				assert.Contains(t, res.Detail, tt.wantDetail)
			}
		})
	}
}

func TestAnswerFormat(t *testing.T) {
	tests := []struct {
		format answerformat.Format
		answer string
		want   bool
	}{
		{"", "hello", true},
		{answerformat.PlainText, "  ", false},
		{answerformat.JSONObject, `{"ok":true}`, true},
		{answerformat.JSONObject, "not-json", false},
		{answerformat.JSONObject, `[1,2]`, false},
		{answerformat.MarkdownBullets, "- a\n  - b\n", true},
		{answerformat.MarkdownBullets, "- a\nplain", false},
	}

	for _, tt := range tests {
		res := checkAnswerFormat(Case{AnswerFormat: tt.format}, tt.answer)
		assert.Equal(t, tt.want, res.Passed, "format %q answer %q: %s", tt.format, tt.answer, res.Detail)
	}
}

func TestAnswerContent(t *testing.T) {
	c := Case{AnswerMustContain: []string{"go"}, AnswerMustNotContain: []string{"python"}}

	assert.True(t, checkAnswerContent(c, "Go only").Passed)

	res := checkAnswerContent(c, "python and go")
	assert.False(t, res.Passed)
	assert.Equal(t, "forbidden strings found: python", res.Detail)

	res = checkAnswerContent(c, "Rust")
	assert.Equal(t, "missing required strings: go", res.Detail)
}

func TestEvaluateRunsAllChecksInOrder(t *testing.T) {
	checks := Evaluate(Case{ID: "c", Prompt: "p"}, outcome("fine"))
	names := make([]string, 0, len(checks))
	for _, c := range checks {
		names = append(names, c.Name)
		assert.True(t, c.Passed, c.Detail)
	}
	assert.Equal(t, []string{
		CheckRequiredToolUsage, CheckNoInventedToolOutput, CheckAnswerFormat, CheckAnswerContent,
	}, names)
}

func TestExtractHelpers(t *testing.T) {
	assert.Equal(t, []string{"12.5", "200"}, numericTokens("Status 200 and 12.5 ms"))
	assert.Equal(t, []string{"404"}, numericTokens("It was 404."))
	assert.Equal(t, []string{"Example Domain", "it"}, quotedFragments(`title "Example Domain" and 'it' then "open`))
	assert.Equal(t, []string{"https://example.com/test"}, urlTokens("see https://example.com/test, now"))
	assert.Empty(t, urlTokens("ftp://example.com example.com"))
}
