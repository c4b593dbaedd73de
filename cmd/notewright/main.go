// Package main provides the notewright CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/notewright/answerformat"
	"github.com/richinex/notewright/cli"
	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/eval"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/logging"
	"github.com/richinex/notewright/storage"
	"github.com/richinex/notewright/telemetry"
	"github.com/richinex/notewright/tools"
)

var version = "dev"

var (
	// Global flags
	provider string

	// Set by chat --json so failures are reported as JSON too.
	jsonErrors bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env file: %v\n", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		cli.PrintError(os.Stderr, err, jsonErrors)
		os.Exit(cli.ExitCode(err))
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "notewright",
		Short: "A bounded tool-calling agent for notes and allowlisted web pages",
		Long: `notewright answers questions with a small, policy-checked tool set:

- search_notes: case-insensitive search over local markdown and text notes
- fetch_url:    fetch a page from an allowlisted domain
- save_note:    write a markdown note into the notes directory

Every turn runs under step, tool-call and size budgets. Failures are reported
with a category (validation, policy, upstream, internal) that sets the exit code.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fault.Wrap(fault.Validation, err, "invalid flags")
	})

	root.PersistentFlags().StringVarP(&provider, "provider", "p", "", "LLM provider (ollama, openai, anthropic, gemini); overrides MODEL_PROVIDER")

	root.AddCommand(chatCmd())
	root.AddCommand(replCmd())
	root.AddCommand(evalCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(historyCmd())

	return root
}

func chatCmd() *cobra.Command {
	var (
		asJSON  bool
		format  string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Run a single turn and print the answer",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonErrors = asJSON
			f, err := answerformat.Parse(format)
			if err != nil {
				return fault.Wrap(fault.Validation, err, "invalid --format")
			}
			return withApp(cmd.Context(), false, func(app *cli.App) error {
				opts := cli.ChatOptions{JSON: asJSON, Format: f, Verbose: verbose}
				return cli.Chat(cmd.Context(), app.Runner(cli.TransportCLI), args[0], opts, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the outcome (answer, trace, tool calls) as JSON")
	cmd.Flags().StringVar(&format, "format", string(answerformat.PlainText), "Expected answer format: plain_text, json_object, markdown_bullets")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show tool calls and the turn trace")

	return cmd
}

func replCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive multi-turn session",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), !verbose, func(app *cli.App) error {
				return cli.REPL(cmd.Context(), app.Runner(cli.TransportREPL), cmd.InOrStdin(), cmd.OutOrStdout(), verbose)
			})
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show tool calls, traces and info logs")

	return cmd
}

func evalCmd() *cobra.Command {
	var casesPath string

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the evaluation suite and fail below the target pass rate",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			settings, logger, err := setup(false)
			if err != nil {
				return err
			}
			return withTelemetry(ctx, settings, func() error {
				build := func(s config.Settings) (*cli.App, error) {
					return cli.NewApp(ctx, s, logger)
				}
				return cli.Eval(ctx, settings, casesPath, build, cmd.OutOrStdout())
			})
		},
	}

	cmd.Flags().StringVar(&casesPath, "cases", eval.DefaultCasesPath, "Path to the YAML eval suite")

	return cmd
}

func serveCmd() *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve turns over HTTP (GET /health, POST /chat)",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(app *cli.App) error {
				return cli.Serve(cmd.Context(), app, bind, version)
			})
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "127.0.0.1:8080", "Address to listen on")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := tools.NewPolicy(config.DefaultToolPolicy())
			if err != nil {
				return err
			}
			registry, err := tools.NewDefaultRegistry(policy, nil)
			if err != nil {
				return err
			}
			cli.ListTools(cmd.OutOrStdout(), registry, verboseTools)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent turns from the turn journal",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, _, err := setup(true)
			if err != nil {
				return err
			}
			if settings.JournalPath == "" {
				return cli.History(cmd.Context(), nil, limit, cmd.OutOrStdout())
			}
			journal, err := storage.OpenJournal(settings.JournalPath)
			if err != nil {
				return err
			}
			defer journal.Close()
			return cli.History(cmd.Context(), journal, limit, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of turns to show")

	return cmd
}

// exactArgs is cobra.ExactArgs with the error categorized as Validation.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fault.Wrap(fault.Validation, err, "invalid arguments")
		}
		return nil
	}
}

// setup loads settings and installs the default logger. quiet raises the
// console level to warn.
func setup(quiet bool) (config.Settings, *slog.Logger, error) {
	if provider != "" {
		_ = os.Setenv("MODEL_PROVIDER", provider)
	}
	settings, err := config.Load()
	if err != nil {
		return config.Settings{}, nil, fmt.Errorf("load config: %w", err)
	}

	level, err := logging.ParseLevel(settings.Logging.Level)
	if err != nil {
		return config.Settings{}, nil, err
	}
	if quiet && level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger, err := logging.New(os.Stderr, level, settings.Logging.Format)
	if err != nil {
		return config.Settings{}, nil, err
	}
	slog.SetDefault(logger)
	return settings, logger, nil
}

// withTelemetry runs fn between telemetry startup and a flushing shutdown.
func withTelemetry(ctx context.Context, settings config.Settings, fn func() error) error {
	shutdown, err := telemetry.Init(ctx, settings.Telemetry, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()
	return fn()
}

// withApp loads settings, starts telemetry and wires an App for fn.
func withApp(ctx context.Context, quiet bool, fn func(*cli.App) error) error {
	settings, logger, err := setup(quiet)
	if err != nil {
		return err
	}
	return withTelemetry(ctx, settings, func() error {
		app, err := cli.NewApp(ctx, settings, logger)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(app)
	})
}
