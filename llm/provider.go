// Chat model provider interface.
//
// Information Hiding:
// - SDK clients, auth and wire shapes hidden inside each Provider
// - Provider failures normalized to *ProviderError
// - Retry, backoff and per-attempt timeouts owned by Client, never a Provider

package llm

import "context"

// Provider is one chat backend. A single request/response exchange per
// call; no retries.
type Provider interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Model is the model identifier sent with each request.
	Model() string

	// ChatWithTools sends the conversation and the advertised tools. The
	// response carries text, tool calls or both. Classifiable failures are
	// returned as *ProviderError.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)
}
