package eval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/answerformat"
)

// Check names as they appear in reports.
const (
	CheckRequiredToolUsage    = "required_tool_usage"
	CheckNoInventedToolOutput = "no_invented_tool_output"
	CheckAnswerFormat         = "answer_format"
	CheckAnswerContent        = "answer_content"
)

const (
	minQuotedFragmentChars = 4
	minNumberDigits        = 3
)

// CheckResult is the verdict of one check on one case.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

func pass(name, detail string) CheckResult { return CheckResult{Name: name, Passed: true, Detail: detail} }
func fail(name, detail string) CheckResult { return CheckResult{Name: name, Detail: detail} }

// Evaluate runs every check for c against a completed turn.
func Evaluate(c Case, out agent.Outcome) []CheckResult {
	return []CheckResult{
		checkRequiredToolUsage(c, out),
		checkNoInventedToolOutput(c, out),
		checkAnswerFormat(c, out.FinalText),
		checkAnswerContent(c, out.FinalText),
	}
}

func checkRequiredToolUsage(c Case, out agent.Outcome) CheckResult {
	if len(c.RequiredTools) == 0 {
		return pass(CheckRequiredToolUsage, "no required tools configured")
	}
	var missing []string
	for _, name := range c.RequiredTools {
		if !out.UsedTool(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fail(CheckRequiredToolUsage, "missing required tool calls: "+strings.Join(missing, ", "))
	}
	return pass(CheckRequiredToolUsage, "all required tools were used")
}

// checkNoInventedToolOutput flags quoted text, long numbers and URLs in the
// answer that appear neither in the prompt nor in any tool output.
func checkNoInventedToolOutput(c Case, out agent.Outcome) CheckResult {
	if !c.NoInventedToolOutput {
		return pass(CheckNoInventedToolOutput, "grounding check disabled for this case")
	}
	if len(out.ToolCalls) == 0 {
		return fail(CheckNoInventedToolOutput, "case requires grounded output but no tool calls were executed")
	}

	var sb strings.Builder
	sb.WriteString(c.Prompt)
	for _, call := range out.ToolCalls {
		sb.WriteByte('\n')
		sb.Write(call.Output)
	}
	corpus := sb.String()
	lowerCorpus := strings.ToLower(corpus)
	knownNumbers := numericTokens(corpus)

	var quotes, numbers, urls []string
	for _, frag := range quotedFragments(out.FinalText) {
		if len([]rune(frag)) >= minQuotedFragmentChars && !strings.Contains(lowerCorpus, strings.ToLower(frag)) {
			quotes = append(quotes, frag)
		}
	}
	for _, n := range numericTokens(out.FinalText) {
		if len(n) >= minNumberDigits && !slices.Contains(knownNumbers, n) {
			numbers = append(numbers, n)
		}
	}
	for _, u := range urlTokens(out.FinalText) {
		if !strings.Contains(lowerCorpus, strings.ToLower(u)) {
			urls = append(urls, u)
		}
	}

	if len(quotes) == 0 && len(numbers) == 0 && len(urls) == 0 {
		return pass(CheckNoInventedToolOutput, "answer appears grounded in prompt/tool output")
	}
	var details []string
	if len(quotes) > 0 {
		details = append(details, "quoted fragments not found in tool outputs: "+strings.Join(quotes, ", "))
	}
	if len(numbers) > 0 {
		details = append(details, "numbers not found in tool outputs: "+strings.Join(numbers, ", "))
	}
	if len(urls) > 0 {
		details = append(details, "urls not found in tool outputs: "+strings.Join(urls, ", "))
	}
	return fail(CheckNoInventedToolOutput, strings.Join(details, "; "))
}

func checkAnswerFormat(c Case, answer string) CheckResult {
	if err := answerformat.Validate(c.AnswerFormat, answer); err != nil {
		return fail(CheckAnswerFormat, err.Error())
	}
	format := c.AnswerFormat
	if format == "" {
		format = answerformat.PlainText
	}
	return pass(CheckAnswerFormat, fmt.Sprintf("answer matches %s", format))
}

func checkAnswerContent(c Case, answer string) CheckResult {
	lower := strings.ToLower(answer)

	var missing, forbidden []string
	for _, s := range c.AnswerMustContain {
		if !strings.Contains(lower, strings.ToLower(s)) {
			missing = append(missing, s)
		}
	}
	for _, s := range c.AnswerMustNotContain {
		if strings.Contains(lower, strings.ToLower(s)) {
			forbidden = append(forbidden, s)
		}
	}

	if len(missing) == 0 && len(forbidden) == 0 {
		return pass(CheckAnswerContent, "required/forbidden content checks passed")
	}
	var details []string
	if len(missing) > 0 {
		details = append(details, "missing required strings: "+strings.Join(missing, ", "))
	}
	if len(forbidden) > 0 {
		details = append(details, "forbidden strings found: "+strings.Join(forbidden, ", "))
	}
	return fail(CheckAnswerContent, strings.Join(details, "; "))
}

// quotedFragments returns the trimmed, non-empty text between matching
// single or double quotes. An unterminated quote is dropped.
func quotedFragments(text string) []string {
	var (
		out     []string
		current strings.Builder
		open    rune
	)
	for _, r := range text {
		switch {
		case open != 0 && r == open:
			if frag := strings.TrimSpace(current.String()); frag != "" {
				out = append(out, frag)
			}
			current.Reset()
			open = 0
		case open != 0:
			current.WriteRune(r)
		case r == '"' || r == '\'':
			open = r
			current.Reset()
		}
	}
	return out
}

// numericTokens returns the sorted distinct runs of ASCII digits in text,
// each allowed a single interior decimal point. A sentence-ending dot is
// not part of the number.
func numericTokens(text string) []string {
	var (
		out     []string
		current strings.Builder
		hasDot  bool
	)
	flush := func() {
		if tok := strings.TrimSuffix(current.String(), "."); tok != "" {
			out = append(out, tok)
		}
		current.Reset()
		hasDot = false
	}
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			current.WriteRune(r)
		case r == '.' && current.Len() > 0 && !hasDot:
			current.WriteRune(r)
			hasDot = true
		default:
			flush()
		}
	}
	flush()

	slices.Sort(out)
	return slices.Compact(out)
}

// urlTokens returns the sorted distinct http(s) URLs among the
// whitespace-separated tokens of text, stripped of surrounding punctuation.
func urlTokens(text string) []string {
	var out []string
	for _, tok := range strings.Fields(text) {
		tok = strings.TrimLeft(tok, `"'([{`)
		if !strings.HasPrefix(tok, "http://") && !strings.HasPrefix(tok, "https://") {
			continue
		}
		out = append(out, strings.TrimRight(tok, `"')]},.;:!?`))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
