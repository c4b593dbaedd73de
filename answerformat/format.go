// Package answerformat validates final answers against a requested shape.
package answerformat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Format is the shape a final answer is expected to take.
type Format string

const (
	PlainText       Format = "plain_text"
	JSONObject      Format = "json_object"
	MarkdownBullets Format = "markdown_bullets"
)

// Formats lists every supported format.
var Formats = []Format{PlainText, JSONObject, MarkdownBullets}

// Parse converts a format name to a Format. The empty string is PlainText.
func Parse(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", PlainText:
		return PlainText, nil
	case JSONObject:
		return JSONObject, nil
	case MarkdownBullets:
		return MarkdownBullets, nil
	}
	return "", fmt.Errorf("unknown answer format %q (supported: plain_text, json_object, markdown_bullets)", s)
}

// UnmarshalText lets Format be decoded from YAML and JSON directly.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Structured reports whether answers in this format are checked at all.
func (f Format) Structured() bool {
	return f == JSONObject || f == MarkdownBullets
}

// ErrEmptyAnswer is returned when an answer has no content.
var ErrEmptyAnswer = errors.New("answer is empty")

// ErrJSONNotObject is returned when an answer is valid JSON but not an object.
var ErrJSONNotObject = errors.New("answer is valid JSON but not an object")

// JSONParseError wraps the decoder failure for a json_object answer.
type JSONParseError struct {
	Err error
}

func (e *JSONParseError) Error() string { return "answer is not valid JSON: " + e.Err.Error() }
func (e *JSONParseError) Unwrap() error { return e.Err }

// NonBulletLinesError lists the lines of a markdown_bullets answer that are
// not bullets.
type NonBulletLinesError struct {
	Lines []string
}

func (e *NonBulletLinesError) Error() string {
	return fmt.Sprintf("answer has non-bullet lines: %s", strings.Join(e.Lines, " | "))
}

// Validate checks answer against f. PlainText only rejects empty answers.
func Validate(f Format, answer string) error {
	switch f {
	case JSONObject:
		return validateJSONObject(answer)
	case MarkdownBullets:
		return validateMarkdownBullets(answer)
	default:
		if strings.TrimSpace(answer) == "" {
			return ErrEmptyAnswer
		}
		return nil
	}
}

// Matches reports whether answer satisfies f.
func Matches(f Format, answer string) bool {
	return Validate(f, answer) == nil
}

func validateJSONObject(answer string) error {
	var v any
	if err := json.Unmarshal([]byte(answer), &v); err != nil {
		return &JSONParseError{Err: err}
	}
	if _, ok := v.(map[string]any); !ok {
		return ErrJSONNotObject
	}
	return nil
}

func validateMarkdownBullets(answer string) error {
	var lines []string
	for _, line := range strings.Split(answer, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return ErrEmptyAnswer
	}

	var invalid []string
	for _, line := range lines {
		if !strings.HasPrefix(strings.TrimLeft(line, " \t"), "- ") {
			invalid = append(invalid, strings.TrimSpace(line))
		}
	}
	if len(invalid) > 0 {
		return &NonBulletLinesError{Lines: invalid}
	}
	return nil
}

// Instructions returns the follow-up prompt that asks the model to restate
// its previous answer in format f.
func Instructions(f Format, problem error) string {
	var b strings.Builder
	b.WriteString("Your previous answer did not follow the required format")
	if problem != nil {
		b.WriteString(" (")
		b.WriteString(problem.Error())
		b.WriteString(")")
	}
	b.WriteString(". Rewrite the same answer without calling any tools. ")
	switch f {
	case JSONObject:
		b.WriteString("Respond with a single JSON object and nothing else: no code fences, no prose before or after it.")
	case MarkdownBullets:
		b.WriteString("Respond only with markdown bullet points. Every non-empty line must start with \"- \".")
	default:
		b.WriteString("Respond with plain text.")
	}
	return b.String()
}
