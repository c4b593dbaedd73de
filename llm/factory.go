// LLM Provider Factory - builds the configured provider.
//
//	provider, err := llm.NewProvider(ctx, settings.LLM)
//	client := llm.NewClient(provider,
//	    llm.WithTimeout(settings.Limits.ModelTimeout),
//	    llm.WithMaxRetries(settings.Limits.ModelMaxRetries))
//
// The rest of the runtime only sees Provider; nothing branches on which
// concrete adapter is behind it.

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/notewright/config"
)

// ProviderType represents supported LLM providers.
type ProviderType int

const (
	// ProviderOllama is a local Ollama daemon.
	ProviderOllama ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderOllama:
		return "ollama"
	case ProviderOpenAI:
		return "openai"
	case ProviderAnthropic:
		return "anthropic"
	case ProviderGemini:
		return "gemini"
	default:
		return "unknown"
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ollama":
		return ProviderOllama, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// NewProvider builds the provider selected by cfg.
func NewProvider(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	pt, err := ParseProviderType(cfg.Provider)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%s: model must be set", pt)
	}
	temperature := float32(cfg.Temperature)

	switch pt {
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.MaxTokens, temperature), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY is required")
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, temperature), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY is required")
		}
		return NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.MaxTokens, temperature), nil
	case ProviderGemini:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gemini: GEMINI_API_KEY is required")
		}
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.MaxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", pt)
	}
}
