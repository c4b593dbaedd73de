package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/storage"
	"github.com/richinex/notewright/tools"
)

// ListTools prints the registry in registration order.
func ListTools(w io.Writer, registry *tools.Registry, verbose bool) {
	fmt.Fprintln(w, "Available tools:")
	fmt.Fprintln(w)

	for _, meta := range registry.List() {
		fmt.Fprintf(w, "  %s\n", meta.Name)
		fmt.Fprintf(w, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(w, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(w, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(w)
	}
}

// TurnLister reads recent journaled turns. *storage.Journal satisfies it.
type TurnLister interface {
	Recent(ctx context.Context, limit int) ([]storage.TurnRecord, error)
}

// History prints the most recent journaled turns, newest first.
func History(ctx context.Context, journal TurnLister, limit int, w io.Writer) error {
	if journal == nil {
		return fault.Validationf("turn journal is disabled; set AGENT_JOURNAL_PATH")
	}
	records, err := journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no turns recorded")
		return nil
	}

	for _, rec := range records {
		status := rec.Status
		if rec.Category != "" {
			status += " [" + rec.Category + "]"
		}
		tools := "-"
		if len(rec.ToolsUsed) > 0 {
			tools = strings.Join(rec.ToolsUsed, ",")
		}
		fmt.Fprintf(w, "%s  %-4s  %-20s  steps=%d tools=%d (%s) %dms  %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"),
			rec.Transport, status, rec.Steps, rec.ToolCalls, tools, rec.LatencyMs, rec.TurnID)
		if rec.Reason != "" {
			fmt.Fprintf(w, "    %s\n", rec.Reason)
		}
	}
	return nil
}
