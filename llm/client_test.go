package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richinex/notewright/fault"
)

type step struct {
	resp LLMResponse
	err  error
	wait bool // block until the attempt context expires
}

type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (p *scriptedProvider) Name() string  { return "fake" }
func (p *scriptedProvider) Model() string { return "fake-model" }

func (p *scriptedProvider) ChatWithTools(ctx context.Context, _ []ChatMessage, _ []ToolDefinition) (LLMResponse, error) {
	p.mu.Lock()
	if p.calls >= len(p.steps) {
		p.mu.Unlock()
		return LLMResponse{}, errors.New("script exhausted")
	}
	s := p.steps[p.calls]
	p.calls++
	p.mu.Unlock()

	if s.wait {
		<-ctx.Done()
		return LLMResponse{}, ctx.Err()
	}
	return s.resp, s.err
}

func newTestClient(p Provider, retries uint32, delays *[]time.Duration) *Client {
	return NewClient(p,
		WithMaxRetries(retries),
		WithTimeout(50*time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		withSleep(func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		}),
	)
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt uint32
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{6, 8 * time.Second},
		{7, 8 * time.Second},
		{100, 8 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestCompleteFinalText(t *testing.T) {
	p := &scriptedProvider{steps: []step{{resp: LLMResponse{Content: "  hello there \n"}}}}
	got, err := newTestClient(p, 2, nil).Complete(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, FinalText, got.Kind)
	assert.Equal(t, "hello there", got.Text)
	assert.Equal(t, 1, p.calls)
}

func TestCompleteToolCallsNormalized(t *testing.T) {
	p := &scriptedProvider{steps: []step{{resp: LLMResponse{ToolCalls: []ToolCall{
		{Name: "search_notes", Arguments: json.RawMessage(`"{\"query\":\"rust\",\"limit\":3}"`)},
		{ID: "call-7", Name: "fetch_url", Arguments: nil},
	}}}}}
	got, err := newTestClient(p, 0, nil).Complete(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, ToolCalls, got.Kind)
	require.Len(t, got.ToolCalls, 2)

	assert.Equal(t, "fake-tool-call-1", got.ToolCalls[0].ID)
	assert.JSONEq(t, `{"query":"rust","limit":3}`, string(got.ToolCalls[0].Arguments))
	assert.Equal(t, "call-7", got.ToolCalls[1].ID)
	assert.JSONEq(t, `{}`, string(got.ToolCalls[1].Arguments))
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	var delays []time.Duration
	p := &scriptedProvider{steps: []step{
		{err: &ProviderError{Provider: "fake", StatusCode: 503, Retryable: true, Err: errors.New("unavailable")}},
		{err: &ProviderError{Provider: "fake", StatusCode: 429, Retryable: true, Err: errors.New("slow down")}},
		{resp: LLMResponse{Content: "ok"}},
	}}
	got, err := newTestClient(p, 2, &delays).Complete(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Text)
	assert.Equal(t, 3, p.calls)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 500 * time.Millisecond}, delays)
}

func TestCompleteGivesUpAfterRetries(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: &ProviderError{Provider: "fake", StatusCode: 500, Retryable: true, Err: errors.New("a")}},
		{err: &ProviderError{Provider: "fake", StatusCode: 500, Retryable: true, Err: errors.New("b")}},
		{resp: LLMResponse{Content: "never reached"}},
	}}
	_, err := newTestClient(p, 1, nil).Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, fault.Upstream, fault.CategoryOf(err))
	assert.Equal(t, 2, p.calls)
}

func TestCompleteZeroRetries(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: &ProviderError{Provider: "fake", StatusCode: 502, Retryable: true, Err: errors.New("a")}},
		{resp: LLMResponse{Content: "never reached"}},
	}}
	_, err := newTestClient(p, 0, nil).Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestCompleteDoesNotRetryTerminalErrors(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: &ProviderError{Provider: "fake", StatusCode: 401, Err: errors.New("bad key")}},
		{resp: LLMResponse{Content: "never reached"}},
	}}
	_, err := newTestClient(p, 3, nil).Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Equal(t, fault.Upstream, fault.CategoryOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestCompleteEmptyResponseIsNotRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{resp: LLMResponse{Content: "   "}},
		{resp: LLMResponse{Content: "never reached"}},
	}}
	_, err := newTestClient(p, 3, nil).Complete(context.Background(), nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, fault.Upstream, fault.CategoryOf(err))
	assert.Equal(t, 1, p.calls)
}

func TestCompleteAttemptTimeoutIsRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{wait: true},
		{resp: LLMResponse{Content: "second try"}},
	}}
	got, err := newTestClient(p, 1, nil).Complete(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "second try", got.Text)
	assert.Equal(t, 2, p.calls)
}

func TestCompleteStopsWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &scriptedProvider{steps: []step{
		{err: context.Canceled},
		{resp: LLMResponse{Content: "never reached"}},
	}}
	_, err := newTestClient(p, 3, nil).Complete(ctx, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"plain", errors.New("schema mismatch"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, Classify("fake", tt.err).Retryable)
		})
	}
	assert.Nil(t, Classify("fake", nil))
}
