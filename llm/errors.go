package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when a provider answers with neither text nor
// tool calls. It is never retried.
var ErrEmptyResponse = errors.New("model returned an empty response")

// ProviderError is a classified model call failure.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("[%s] HTTP %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is a transient model call failure.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// Classify converts an arbitrary provider error into a *ProviderError.
// Timeouts, network errors, HTTP 408/429 and 5xx are retryable. Everything
// else (bad requests, auth failures, malformed responses) is terminal.
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	status := statusCodeOf(err)
	if status != 0 {
		return &ProviderError{Provider: provider, StatusCode: status, Retryable: retryableStatus(status), Err: err}
	}

	retryable := false
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, context.DeadlineExceeded):
		retryable = true
	case errors.As(err, &netErr):
		retryable = true
	case errors.Is(err, io.ErrUnexpectedEOF):
		retryable = true
	}
	return &ProviderError{Provider: provider, Retryable: retryable, Err: err}
}

// statusCodeOf extracts the HTTP status from SDK error types.
func statusCodeOf(err error) int {
	var oaiAPI *openai.APIError
	if errors.As(err, &oaiAPI) {
		return oaiAPI.HTTPStatusCode
	}
	var oaiReq *openai.RequestError
	if errors.As(err, &oaiReq) {
		return oaiReq.HTTPStatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return genErr.Code
	}
	return 0
}

func retryableStatus(status int) bool {
	return status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests ||
		status >= http.StatusInternalServerError
}
