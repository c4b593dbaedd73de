package eval

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/richinex/notewright/agent"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/logging"
)

// NotesDirPrefix names the scratch notes directory an eval run writes into.
const NotesDirPrefix = "notewright_eval_notes_"

// TurnRunner executes one agent turn. *agent.Loop satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, req agent.TurnRequest) (agent.Outcome, error)
}

// CaseResult is the outcome of one case. Error is set when the turn itself
// failed, in which case no checks ran.
type CaseResult struct {
	CaseID    string        `json:"case_id"`
	Passed    bool          `json:"passed"`
	Checks    []CheckResult `json:"checks"`
	Category  string        `json:"category,omitempty"`
	Error     string        `json:"error,omitempty"`
	FinalText string        `json:"final_text,omitempty"`
	UsedTools []string      `json:"used_tools"`
}

// Report summarises a full suite run.
type Report struct {
	CasesPath      string       `json:"cases_path"`
	TotalCases     int          `json:"total_cases"`
	PassedCases    int          `json:"passed_cases"`
	FailedCases    int          `json:"failed_cases"`
	PassRate       float64      `json:"pass_rate"`
	TargetPassRate float64      `json:"target_pass_rate"`
	Cases          []CaseResult `json:"cases"`
}

// Runner runs suites case by case against a TurnRunner.
type Runner struct {
	turns  TurnRunner
	logger *slog.Logger
}

// NewRunner creates a runner. A nil logger discards.
func NewRunner(turns TurnRunner, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{turns: turns, logger: logger}
}

// Run executes every case in order. Cases never share history. A cancelled
// ctx stops the run and returns the error.
func (r *Runner) Run(ctx context.Context, suite *Suite, casesPath string) (Report, error) {
	report := Report{
		CasesPath:      casesPath,
		TargetPassRate: suite.TargetPassRate,
		Cases:          make([]CaseResult, 0, len(suite.Cases)),
	}

	for _, c := range suite.Cases {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("eval cancelled: %w", err)
		}
		start := time.Now()
		res := r.runCase(ctx, c)
		r.logger.Info("eval case finished",
			"case_id", c.ID,
			"passed", res.Passed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		report.Cases = append(report.Cases, res)
		if res.Passed {
			report.PassedCases++
		}
	}

	report.TotalCases = len(report.Cases)
	report.FailedCases = report.TotalCases - report.PassedCases
	if report.TotalCases > 0 {
		report.PassRate = float64(report.PassedCases) / float64(report.TotalCases)
	}
	return report, nil
}

func (r *Runner) runCase(ctx context.Context, c Case) CaseResult {
	out, err := r.turns.RunTurn(ctx, agent.TurnRequest{Input: c.Prompt, Format: c.AnswerFormat})
	if err != nil {
		return CaseResult{
			CaseID:    c.ID,
			Checks:    []CheckResult{},
			Category:  fault.CategoryOf(err).String(),
			Error:     fault.Reason(err),
			UsedTools: []string{},
		}
	}

	checks := Evaluate(c, out)
	passed := true
	for _, ch := range checks {
		passed = passed && ch.Passed
	}
	used := out.Trace.ToolsUsed
	if used == nil {
		used = []string{}
	}
	return CaseResult{
		CaseID:    c.ID,
		Passed:    passed,
		Checks:    checks,
		FinalText: out.FinalText,
		UsedTools: used,
	}
}

// MeetsTarget reports whether the pass rate reached the suite's target.
func (r Report) MeetsTarget() bool {
	return r.PassRate+1e-9 >= r.TargetPassRate
}

// Err returns an error when the pass rate is below target.
func (r Report) Err() error {
	if r.MeetsTarget() {
		return nil
	}
	return fault.Internalf("evaluation pass rate %.1f%% is below target %.1f%%",
		r.PassRate*100, r.TargetPassRate*100)
}

// WriteText prints the human-readable report: one PASS/FAIL line per case,
// failing check details, then a summary line.
func (r Report) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Running %d evaluation cases from %s\n", r.TotalCases, r.CasesPath)
	for _, c := range r.Cases {
		if c.Passed {
			fmt.Fprintf(w, "[PASS] %s\n", c.CaseID)
			continue
		}
		fmt.Fprintf(w, "[FAIL] %s\n", c.CaseID)
		if c.Error != "" {
			fmt.Fprintf(w, "  error [%s]: %s\n", c.Category, c.Error)
		}
		for _, ch := range c.Checks {
			if !ch.Passed {
				fmt.Fprintf(w, "  check %s: %s\n", ch.Name, ch.Detail)
			}
		}
	}
	fmt.Fprintf(w, "Summary: %d passed, %d failed, pass rate %.1f%% (target %.1f%%)\n",
		r.PassedCases, r.FailedCases, roundPercent(r.PassRate), roundPercent(r.TargetPassRate))
}

func roundPercent(rate float64) float64 {
	return math.Round(rate*1000) / 10
}

// CreateNotesDir makes a fresh scratch notes directory under the system
// temp dir. The caller removes it.
func CreateNotesDir() (string, error) {
	name := fmt.Sprintf("%s%d_%d", NotesDirPrefix, os.Getpid(), time.Now().UnixMilli())
	path := filepath.Join(os.TempDir(), name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("failed to create eval notes directory %q: %w", path, err)
	}
	return path, nil
}
