// Ollama Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses Ollama's OpenAI-compatible API under <base>/v1
// - No API key; the SDK requires a non-empty placeholder

package llm

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOllamaBaseURL is where a local Ollama daemon listens.
const DefaultOllamaBaseURL = "http://localhost:11434"

// NewOllamaProvider creates a provider that talks to an Ollama daemon.
func NewOllamaProvider(baseURL, model string, maxTokens uint32, temperature float32) *OpenAIProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaBaseURL
	}
	config := openai.DefaultConfig("ollama")
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(config),
		name:        "ollama",
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}
