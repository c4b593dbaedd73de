// Command execution for CLI commands.
//
// Information Hiding:
// - Component wiring (policy, registry, dispatcher, client, loop) hidden
// - Turn journaling hidden behind the recording runner
// - Output formatting hidden

package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/llm"
	"github.com/richinex/notewright/storage"
	"github.com/richinex/notewright/tools"
)

// Transport names recorded in the turn journal.
const (
	TransportCLI  = "cli"
	TransportREPL = "repl"
	TransportEval = "eval"
)

// App is a fully wired runtime: one loop, one dispatcher and an optional
// journal, shared by every turn a command runs.
type App struct {
	Settings   config.Settings
	Loop       *agent.Loop
	Dispatcher *tools.Dispatcher
	Journal    *storage.Journal
	Logger     *slog.Logger
}

// NewApp builds the provider adapter from settings and wires the app around
// a retrying model client.
func NewApp(ctx context.Context, settings config.Settings, logger *slog.Logger) (*App, error) {
	provider, err := llm.NewProvider(ctx, settings.LLM)
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(provider,
		llm.WithTimeout(settings.Limits.ModelTimeout),
		llm.WithMaxRetries(settings.Limits.ModelMaxRetries),
		llm.WithLogger(logger),
	)
	return NewAppWithModel(settings, client, logger)
}

// NewAppWithModel wires everything except the model, which the caller
// supplies.
func NewAppWithModel(settings config.Settings, model agent.Model, logger *slog.Logger) (*App, error) {
	policy, err := tools.NewPolicy(settings.Tools)
	if err != nil {
		return nil, err
	}
	registry, err := tools.NewDefaultRegistry(policy, nil)
	if err != nil {
		return nil, err
	}
	dispatcher := tools.NewDispatcher(registry, policy,
		tools.WithToolTimeout(settings.Limits.ToolTimeout),
		tools.WithDispatchLogger(logger),
	)

	loop, err := agent.NewBuilder().
		Limits(settings.Limits).
		Model(model).
		Dispatcher(dispatcher).
		Logger(logger).
		Build()
	if err != nil {
		return nil, err
	}

	app := &App{
		Settings:   settings,
		Loop:       loop,
		Dispatcher: dispatcher,
		Logger:     logger,
	}
	if settings.JournalPath != "" {
		journal, err := storage.OpenJournal(settings.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open turn journal: %w", err)
		}
		app.Journal = journal
	}
	return app, nil
}

// Close releases the journal, if one is open.
func (a *App) Close() error {
	if a.Journal == nil {
		return nil
	}
	return a.Journal.Close()
}

// Runner returns a turn runner that journals each turn under transport.
func (a *App) Runner(transport string) *RecordingRunner {
	return &RecordingRunner{loop: a.Loop, journal: a.Journal, transport: transport, logger: a.Logger}
}

// RecordingRunner runs turns on the loop and journals each one that got a
// turn ID. A journal failure is logged, never returned.
type RecordingRunner struct {
	loop      *agent.Loop
	journal   *storage.Journal
	transport string
	logger    *slog.Logger
}

// RunTurn runs one turn and records it.
func (r *RecordingRunner) RunTurn(ctx context.Context, req agent.TurnRequest) (agent.Outcome, error) {
	out, err := r.loop.RunTurn(ctx, req)
	if r.journal != nil && out.TurnID != "" {
		rec := storage.NewTurnRecord(r.transport, out, err)
		if jerr := r.journal.Record(context.WithoutCancel(ctx), rec); jerr != nil {
			r.logger.Warn("failed to journal turn", "turn_id", out.TurnID, "error", jerr)
		}
	}
	return out, err
}
