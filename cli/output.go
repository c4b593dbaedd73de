package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/fault"
)

// errorBody is the --json failure shape.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Category fault.Category `json:"category"`
	Reason   string         `json:"reason"`
}

// PrintError writes err as `error [category]: reason`, or as the JSON error
// body when asJSON is set.
func PrintError(w io.Writer, err error, asJSON bool) {
	cat := fault.CategoryOf(err)
	if asJSON {
		writeJSON(w, errorBody{Error: errorDetail{Category: cat, Reason: fault.Reason(err)}})
		return
	}
	fmt.Fprintf(w, "error [%s]: %s\n", cat, fault.Reason(err))
}

// ExitCode maps err to the process exit status. nil is 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return fault.CategoryOf(err).ExitCode()
}

func writeJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

const maxToolOutputPreview = 200

func printToolCalls(w io.Writer, calls []agent.ExecutedToolCall) {
	fmt.Fprintln(w, "--- Tool calls ---")
	for i, call := range calls {
		fmt.Fprintf(w, "[%d] %s (%dms, %d attempt(s))\n", i+1, call.Tool, call.LatencyMs, call.Attempts)
		fmt.Fprintf(w, "    args: %s\n", compactJSON(call.Arguments))
		fmt.Fprintf(w, "    output: %s\n", truncateString(compactJSON(call.Output), maxToolOutputPreview))
	}
	fmt.Fprintln(w, "------------------")
}

func printTrace(w io.Writer, t agent.Trace) {
	fmt.Fprintf(w, "(%d step(s), %d model call(s), %d tool call(s), %dms)\n",
		t.Steps, t.ModelCalls, t.ToolCallsTotal, t.TurnLatencyMs)
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
