// Bounded tool-calling loop.
//
// All turns go through RunTurn.
//
// Information Hiding:
// - Budget accounting hidden in turnState
// - Model communication hidden behind Model
// - Tool execution hidden behind ToolDispatcher
// - Answer format re-prompt hidden

package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/richinex/notewright/answerformat"
	"github.com/richinex/notewright/fault"
	"github.com/richinex/notewright/llm"
)

const instrumentationName = "github.com/richinex/notewright/agent"

// Loop drives turns against a model and a tool dispatcher. It holds no
// per-turn state and is safe for concurrent use.
type Loop struct {
	config     Config
	model      Model
	dispatcher ToolDispatcher
	logger     *slog.Logger
	turns      metric.Int64Counter
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger for step and turn events.
func WithLogger(l *slog.Logger) Option {
	return func(loop *Loop) {
		if l != nil {
			loop.logger = l
		}
	}
}

// New creates a loop. The configuration is copied.
func New(cfg Config, model Model, dispatcher ToolDispatcher, opts ...Option) *Loop {
	loop := &Loop{
		config:     cfg,
		model:      model,
		dispatcher: dispatcher,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(loop)
	}
	// The global meter is a no-op until telemetry installs a provider.
	counter, err := otel.Meter(instrumentationName).Int64Counter("notewright.turns",
		metric.WithDescription("Completed agent turns by outcome category"))
	if err == nil {
		loop.turns = counter
	}
	return loop
}

// Config returns the loop configuration.
func (l *Loop) Config() Config {
	return l.config
}

// turnState is owned by exactly one RunTurn call.
type turnState struct {
	step                 uint32
	toolCallsTotal       uint32
	consecutiveToolSteps uint32
	history              []llm.ChatMessage
	defs                 []llm.ToolDefinition
	trace                Trace
	executed             []ExecutedToolCall
}

func (s *turnState) useTool(name string) {
	for _, t := range s.trace.ToolsUsed {
		if t == name {
			return
		}
	}
	s.trace.ToolsUsed = append(s.trace.ToolsUsed, name)
}

// RunTurn executes one turn. On failure it returns the partial outcome and
// an error carrying a fault category.
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest) (Outcome, error) {
	start := time.Now()
	turnID := uuid.NewString()

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "agent.turn")
	defer span.End()
	span.SetAttributes(attribute.String("agent.turn_id", turnID))

	state := &turnState{trace: Trace{ToolsUsed: []string{}}}
	text, err := l.run(ctx, req, state)

	state.trace.Steps = state.step
	state.trace.ToolCallsTotal = state.toolCallsTotal
	state.trace.TurnLatencyMs = uint64(time.Since(start).Milliseconds())
	outcome := Outcome{
		TurnID:    turnID,
		Trace:     state.trace,
		ToolCalls: state.executed,
		History:   state.history,
	}
	if outcome.ToolCalls == nil {
		outcome.ToolCalls = []ExecutedToolCall{}
	}

	span.SetAttributes(
		attribute.Int("agent.steps", int(state.step)),
		attribute.Int("agent.tool_calls", int(state.toolCallsTotal)),
	)
	outcomeLabel := "success"
	if err != nil {
		cat := fault.CategoryOf(err)
		outcomeLabel = cat.String()
		span.SetAttributes(attribute.String("agent.error_category", cat.String()))
		span.SetStatus(codes.Error, err.Error())
		l.logger.Info("turn failed",
			"turn_id", turnID,
			"category", cat.String(),
			"steps", state.step,
			"tool_calls", state.toolCallsTotal,
			"latency_ms", state.trace.TurnLatencyMs,
			"error", err.Error(),
		)
	} else {
		outcome.FinalText = text
		l.logger.Info("turn completed",
			"turn_id", turnID,
			"steps", state.step,
			"model_calls", state.trace.ModelCalls,
			"tool_calls", state.toolCallsTotal,
			"tools_used", state.trace.ToolsUsed,
			"latency_ms", state.trace.TurnLatencyMs,
		)
	}
	if l.turns != nil {
		l.turns.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcomeLabel)))
	}
	return outcome, err
}

func (l *Loop) run(ctx context.Context, req TurnRequest, state *turnState) (string, error) {
	limits := l.config.Limits

	inputChars := utf8.RuneCountInString(req.Input)
	state.trace.InputChars = inputChars
	if inputChars > limits.MaxInputChars {
		return "", fault.Validationf("input has %d characters, limit is %d", inputChars, limits.MaxInputChars)
	}
	if strings.TrimSpace(req.Input) == "" {
		return "", fault.Validationf("input is empty")
	}
	format := req.Format
	if format == "" {
		format = answerformat.PlainText
	}

	state.history = make([]llm.ChatMessage, 0, len(req.History)+8)
	if len(req.History) == 0 || req.History[0].Role != llm.RoleSystem {
		state.history = append(state.history, llm.SystemMessage(l.config.SystemPrompt))
	}
	state.history = append(state.history, req.History...)
	state.history = append(state.history, llm.UserMessage(req.Input))

	state.defs = l.dispatcher.Definitions()

	for {
		state.step++
		if state.step > limits.MaxSteps {
			state.step = limits.MaxSteps
			return "", fault.Internalf("max steps reached (%d)", limits.MaxSteps)
		}
		if err := ctx.Err(); err != nil {
			return "", fault.Wrap(fault.Internal, err, "turn cancelled")
		}

		completion, err := l.complete(ctx, state)
		if err != nil {
			return "", err
		}

		if completion.Kind == llm.FinalText {
			text, err := l.finish(ctx, state, completion.Text, format)
			if err != nil {
				return "", err
			}
			state.consecutiveToolSteps = 0
			return text, nil
		}

		if err := l.runTools(ctx, state, completion); err != nil {
			return "", err
		}
	}
}

func (l *Loop) complete(ctx context.Context, state *turnState) (llm.Completion, error) {
	started := time.Now()
	completion, err := l.model.Complete(ctx, state.history, state.defs)
	state.trace.ModelCalls++
	state.trace.ModelLatencyMs += uint64(time.Since(started).Milliseconds())
	if completion.Usage != nil {
		if state.trace.TokenUsage == nil {
			state.trace.TokenUsage = &llm.TokenUsage{}
		}
		state.trace.TokenUsage.Add(completion.Usage)
	}
	if err != nil {
		return llm.Completion{}, err
	}
	l.logger.Debug("model step",
		"step", state.step,
		"kind", completion.Kind.String(),
		"tool_calls", len(completion.ToolCalls),
	)
	return completion, nil
}

// finish applies the output limit and, for a structured format, the single
// re-prompt. The re-prompt is best effort: if it fails in any way the first
// answer stands.
func (l *Loop) finish(ctx context.Context, state *turnState, text string, format answerformat.Format) (string, error) {
	maxOutput := l.config.Limits.MaxOutputChars
	chars := utf8.RuneCountInString(text)
	if chars > maxOutput {
		state.trace.OutputChars = chars
		return "", fault.Validationf("answer has %d characters, limit is %d", chars, maxOutput)
	}
	state.history = append(state.history, llm.AssistantMessage(text))

	problem := answerformat.Validate(format, text)
	if problem == nil || !format.Structured() {
		state.trace.OutputChars = chars
		return text, nil
	}

	l.logger.Debug("answer does not match format; re-prompting",
		"format", string(format),
		"problem", problem.Error(),
	)
	state.trace.Reprompted = true
	base := len(state.history)
	state.history = append(state.history, llm.UserMessage(answerformat.Instructions(format, problem)))

	retry, err := l.complete(ctx, state)
	retryChars := utf8.RuneCountInString(retry.Text)
	if err != nil || retry.Kind != llm.FinalText || retryChars > maxOutput {
		reason := "tool calls returned"
		if err != nil {
			reason = err.Error()
		} else if retryChars > maxOutput {
			reason = "answer over output limit"
		}
		l.logger.Debug("format re-prompt discarded", "reason", reason)
		state.history = state.history[:base]
		state.trace.OutputChars = chars
		return text, nil
	}

	state.history = append(state.history, llm.AssistantMessage(retry.Text))
	state.trace.OutputChars = retryChars
	return retry.Text, nil
}

// runTools enforces the batch budgets before dispatching anything, then
// dispatches in received order. The first dispatch error ends the turn.
func (l *Loop) runTools(ctx context.Context, state *turnState, completion llm.Completion) error {
	limits := l.config.Limits
	batch := uint32(len(completion.ToolCalls))

	if batch > limits.MaxToolCallsPerStep {
		return fault.Validationf("model requested %d tool calls in one step, limit is %d", batch, limits.MaxToolCallsPerStep)
	}
	if state.toolCallsTotal+batch > limits.MaxToolCalls {
		return fault.Validationf("tool call budget exceeded: %d used, %d requested, limit is %d",
			state.toolCallsTotal, batch, limits.MaxToolCalls)
	}
	state.consecutiveToolSteps++
	if state.consecutiveToolSteps > limits.MaxConsecutiveToolSteps {
		return fault.Internalf("max consecutive tool steps exceeded (%d)", limits.MaxConsecutiveToolSteps)
	}

	state.history = append(state.history, llm.AssistantToolCallsMessage(completion.Text, completion.ToolCalls))
	for _, call := range completion.ToolCalls {
		result, err := l.dispatcher.Dispatch(ctx, call)
		if err != nil {
			var categorized fault.Categorized
			if !errors.As(err, &categorized) {
				err = fault.Wrap(fault.Internal, err, "tool dispatch failed")
			}
			l.logger.Debug("tool call failed",
				"step", state.step,
				"tool", call.Name,
				"call_id", call.ID,
				"error", err.Error(),
			)
			return err
		}

		latency := uint64(result.Latency.Milliseconds())
		state.trace.ToolLatencyMs += latency
		state.useTool(call.Name)
		state.executed = append(state.executed, ExecutedToolCall{
			ID:        call.ID,
			Tool:      call.Name,
			Arguments: call.Arguments,
			Output:    result.Output,
			LatencyMs: latency,
			Attempts:  result.Attempts,
		})
		state.history = append(state.history, llm.ToolResultMessage(call, string(result.Output)))
		l.logger.Debug("tool call succeeded",
			"step", state.step,
			"tool", call.Name,
			"call_id", call.ID,
			"latency_ms", latency,
		)
	}
	state.toolCallsTotal += batch
	return nil
}
