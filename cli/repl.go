package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/llm"
)

const (
	replPrompt  = "> "
	resetPhrase = "/reset"
)

// REPL reads lines from in and runs each as a turn that continues the
// in-memory conversation. A failed turn is reported and leaves the history
// unchanged. exit or quit ends the session; /reset clears the history.
func REPL(ctx context.Context, runner TurnRunner, in io.Reader, out io.Writer, verbose bool) error {
	fmt.Fprintln(out, "notewright REPL. Type 'exit' to quit, '/reset' to clear history.")
	fmt.Fprintln(out)

	var history []llm.ChatMessage
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, replPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case resetPhrase:
			history = nil
			fmt.Fprintln(out, "history cleared")
			continue
		}

		turn, err := runner.RunTurn(ctx, agent.TurnRequest{Input: input, History: history})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out)
			PrintError(out, err, false)
			fmt.Fprintln(out)
			continue
		}
		history = turn.History

		if verbose && len(turn.ToolCalls) > 0 {
			fmt.Fprintln(out)
			printToolCalls(out, turn.ToolCalls)
		}
		fmt.Fprintf(out, "\n%s\n\n", turn.FinalText)
		if verbose {
			printTrace(out, turn.Trace)
			fmt.Fprintln(out)
		}
	}

	return scanner.Err()
}
