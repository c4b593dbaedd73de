// LLMClient - retrying wrapper around providers.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/richinex/notewright/fault"
)

const (
	defaultModelTimeout = 20 * time.Second
	defaultMaxRetries   = 2
	retryBaseDelay      = 250 * time.Millisecond
	maxBackoffExponent  = 5
)

// Client wraps a Provider with per-attempt timeouts, bounded retries and
// response normalization. It is safe for concurrent use.
type Client struct {
	provider   Provider
	timeout    time.Duration
	maxRetries uint32
	logger     *slog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the deadline applied to each attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n uint32) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// withSleep replaces the backoff sleep; tests use it to avoid real delays.
func withSleep(fn func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) { c.sleep = fn }
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:   provider,
		timeout:    defaultModelTimeout,
		maxRetries: defaultMaxRetries,
		logger:     slog.Default(),
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// RetryDelay returns the backoff before retry number attempt (1-based):
// 250ms doubled per attempt, with the exponent capped at 5.
func RetryDelay(attempt uint32) time.Duration {
	exp := uint32(0)
	if attempt > 1 {
		exp = attempt - 1
	}
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	return retryBaseDelay << exp
}

// Complete sends history and tool definitions to the provider and returns
// either a final answer or a batch of tool calls. Terminal failures carry
// the Upstream category.
func (c *Client) Complete(ctx context.Context, history []ChatMessage, tools []ToolDefinition) (Completion, error) {
	ctx, span := otel.Tracer("github.com/richinex/notewright/llm").Start(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", c.provider.Name()),
		attribute.String("llm.model", c.provider.Model()),
		attribute.Int("llm.messages", len(history)),
	)

	totalAttempts := c.maxRetries + 1
	for attempt := uint32(1); ; attempt++ {
		resp, err := c.once(ctx, history, tools)
		if err == nil {
			span.SetAttributes(attribute.Int("llm.attempts", int(attempt)))
			completion, err := c.normalize(resp)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return Completion{}, fault.Wrap(fault.Upstream, err, "model response rejected")
			}
			return completion, nil
		}

		perr := Classify(c.provider.Name(), err)
		if ctx.Err() != nil || attempt >= totalAttempts || !perr.Retryable {
			span.SetAttributes(attribute.Int("llm.attempts", int(attempt)))
			span.SetStatus(codes.Error, perr.Error())
			return Completion{}, fault.Wrap(fault.Upstream, perr, "model call failed")
		}

		delay := RetryDelay(attempt)
		c.logger.Warn("model call failed; retrying",
			"provider", c.provider.Name(),
			"attempt", attempt,
			"total_attempts", totalAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", perr.Error(),
		)
		if err := c.sleep(ctx, delay); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return Completion{}, fault.Wrap(fault.Upstream, err, "model call cancelled during backoff")
		}
	}
}

func (c *Client) once(ctx context.Context, history []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.provider.ChatWithTools(attemptCtx, history, tools)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return LLMResponse{}, &ProviderError{
			Provider:  c.provider.Name(),
			Retryable: true,
			Err:       fmt.Errorf("model request timed out after %dms: %w", c.timeout.Milliseconds(), err),
		}
	}
	return resp, err
}

// normalize turns a raw provider response into a Completion. Tool calls
// without an ID get a stable synthetic one and arguments delivered as a
// JSON-encoded string are unwrapped.
func (c *Client) normalize(resp LLMResponse) (Completion, error) {
	text := strings.TrimSpace(resp.Content)
	if len(resp.ToolCalls) == 0 {
		if text == "" {
			return Completion{}, &ProviderError{Provider: c.provider.Name(), Err: ErrEmptyResponse}
		}
		return Completion{Kind: FinalText, Text: text, Usage: resp.Usage}, nil
	}

	calls := make([]ToolCall, len(resp.ToolCalls))
	for i, tc := range resp.ToolCalls {
		if strings.TrimSpace(tc.ID) == "" {
			tc.ID = fmt.Sprintf("%s-tool-call-%d", c.provider.Name(), i+1)
		}
		tc.Arguments = normalizeArguments(tc.Arguments)
		calls[i] = tc
	}
	return Completion{Kind: ToolCalls, Text: text, ToolCalls: calls, Usage: resp.Usage}, nil
}

// normalizeArguments maps empty arguments to {} and unwraps a JSON string
// that itself holds a JSON document. Anything else passes through untouched
// so the dispatcher can reject it.
func normalizeArguments(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage("{}")
	}
	if strings.HasPrefix(trimmed, `"`) {
		var inner string
		if err := json.Unmarshal([]byte(trimmed), &inner); err == nil && json.Valid([]byte(inner)) {
			return json.RawMessage(inner)
		}
	}
	return json.RawMessage(trimmed)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
