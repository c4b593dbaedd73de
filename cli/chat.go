package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/answerformat"
)

// TurnRunner executes one agent turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (agent.Outcome, error)
}

// ChatOptions controls one-shot chat output.
type ChatOptions struct {
	JSON    bool
	Format  answerformat.Format
	Verbose bool
}

// Chat runs a single turn for message and prints the answer. Errors are
// returned for the caller to report.
func Chat(ctx context.Context, runner TurnRunner, message string, opts ChatOptions, w io.Writer) error {
	out, err := runner.RunTurn(ctx, agent.TurnRequest{Input: message, Format: opts.Format})
	if err != nil {
		return err
	}

	if opts.JSON {
		writeJSON(w, out)
		return nil
	}
	if opts.Verbose && len(out.ToolCalls) > 0 {
		printToolCalls(w, out.ToolCalls)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, out.FinalText)
	if opts.Verbose {
		fmt.Fprintln(w)
		printTrace(w, out.Trace)
	}
	return nil
}
