package cli

import (
	"context"
	"io"
	"os"

	"github.com/richinex/notewright/config"
	"github.com/richinex/notewright/eval"
)

// AppFactory builds an App for the given settings.
type AppFactory func(config.Settings) (*App, error)

// Eval runs the suite at casesPath against a fresh scratch notes directory,
// prints the report and fails when the pass rate is below target. The
// scratch directory is removed afterwards.
func Eval(ctx context.Context, settings config.Settings, casesPath string, build AppFactory, w io.Writer) error {
	notesDir, err := eval.CreateNotesDir()
	if err != nil {
		return err
	}
	settings.Tools.NotesDir = notesDir

	app, err := build(settings)
	if err != nil {
		_ = os.RemoveAll(notesDir)
		return err
	}
	defer func() {
		if err := os.RemoveAll(notesDir); err != nil {
			app.Logger.Warn("failed to remove eval notes directory", "path", notesDir, "error", err)
		}
	}()
	defer app.Close()

	suite, err := eval.LoadSuite(casesPath, app.Dispatcher.Registry().Names())
	if err != nil {
		return err
	}

	report, err := eval.NewRunner(app.Runner(TransportEval), app.Logger).Run(ctx, suite, casesPath)
	if err != nil {
		return err
	}
	report.WriteText(w)
	return report.Err()
}
