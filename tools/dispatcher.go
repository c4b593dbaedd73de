// Tool Dispatcher.
//
// Information Hiding:
// - Lookup, strict parsing and policy ordering hidden
// - Per-call timeout and transient retry hidden
// - Failure classification into DispatchError kinds hidden

package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/richinex/notewright/llm"
)

const (
	defaultToolTimeout  = 5 * time.Second
	defaultRetryBackoff = 200 * time.Millisecond
)

// Dispatcher runs model-requested tool calls: lookup, strict argument
// parsing, policy evaluation, then execution under a timeout.
type Dispatcher struct {
	registry     *Registry
	policy       *Policy
	timeout      time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithToolTimeout sets the per-attempt execution timeout.
func WithToolTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithDispatchLogger sets the logger used for retry and failure events.
func WithDispatchLogger(l *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

func withRetryBackoff(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.retryBackoff = d }
}

// NewDispatcher creates a dispatcher over registry guarded by policy.
func NewDispatcher(registry *Registry, policy *Policy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry:     registry,
		policy:       policy,
		timeout:      defaultToolTimeout,
		retryBackoff: defaultRetryBackoff,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Definitions returns the tool schemas advertised to the model.
func (d *Dispatcher) Definitions() []llm.ToolDefinition {
	return d.registry.Definitions()
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch executes one tool call. Every failure is a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) (Result, error) {
	ctx, span := otel.Tracer("github.com/richinex/notewright/tools").Start(ctx, "tools.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)

	result, err := d.dispatch(ctx, call)
	if err != nil {
		var de *DispatchError
		if errors.As(err, &de) {
			span.SetAttributes(attribute.String("tool.error_kind", de.Kind.String()))
		}
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	span.SetAttributes(
		attribute.Int("tool.attempts", result.Attempts),
		attribute.Int("tool.output_bytes", len(result.Output)),
	)
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, call llm.ToolCall) (Result, error) {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		return Result{}, unknownTool(call.Name)
	}
	args, err := ParseArgs(call.Name, call.Arguments)
	if err != nil {
		return Result{}, err
	}
	if err := d.policy.Check(args); err != nil {
		return Result{}, err
	}

	meta := tool.Metadata()
	maxAttempts := 1
	if meta.RetryTransient {
		maxAttempts = 2
	}

	start := time.Now()
	for attempt := 1; ; attempt++ {
		output, err := d.executeOnce(ctx, tool, args)
		if err == nil {
			return Result{
				Tool:     call.Name,
				CallID:   call.ID,
				Output:   output,
				Latency:  time.Since(start),
				Attempts: attempt,
			}, nil
		}

		var de *DispatchError
		if errors.As(err, &de) {
			return Result{}, de
		}
		if ctx.Err() != nil {
			return Result{}, executionFailure(call.Name, fmt.Errorf("cancelled: %w", ctx.Err()))
		}
		if !isTransient(err) {
			return Result{}, executionFailure(call.Name, err)
		}
		if !meta.RetryTransient {
			return Result{}, executionFailure(call.Name, err)
		}
		if attempt >= maxAttempts {
			return Result{}, upstreamFailure(call.Name, fmt.Errorf("%w (after %d attempts)", err, attempt))
		}

		d.logger.Warn("tool call failed; retrying",
			"tool", call.Name,
			"call_id", call.ID,
			"attempt", attempt,
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return Result{}, executionFailure(call.Name, fmt.Errorf("cancelled during retry backoff: %w", ctx.Err()))
		case <-time.After(d.retryBackoff):
		}
	}
}

// executeOnce runs a single attempt under the per-call timeout. A timeout
// of the attempt itself is reported as transient.
func (d *Dispatcher) executeOnce(ctx context.Context, tool Tool, args Args) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	output, err := tool.Execute(attemptCtx, args)
	if err != nil {
		if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			var de *DispatchError
			if !errors.As(err, &de) {
				return nil, transient(fmt.Errorf("timed out after %dms", d.timeout.Milliseconds()))
			}
		}
		return nil, err
	}
	return output, nil
}
