// Agent configuration types.
//
// Information Hiding:
// - Configuration validation logic hidden
// - Default values hidden

package agent

import (
	"errors"

	"github.com/richinex/notewright/config"
)

// DefaultSystemPrompt instructs the model on the tool contract.
const DefaultSystemPrompt = `You are notewright, a careful assistant for a local notes workspace.

You can call these tools:
- search_notes: find local notes mentioning a query.
- fetch_url: read a web page from an allowlisted domain.
- save_note: store a markdown note under a title.

Call a tool only when the request needs it. Never invent tool output: quote
file names, numbers and URLs only when a tool returned them or the user gave
them. When you have what you need, answer directly and concisely.`

// Config holds loop configuration.
type Config struct {
	// SystemPrompt opens every new conversation.
	SystemPrompt string

	// Limits bound every turn.
	Limits config.Limits
}

// DefaultConfig returns the default prompt and limits.
func DefaultConfig() Config {
	return Config{
		SystemPrompt: DefaultSystemPrompt,
		Limits:       config.DefaultLimits(),
	}
}

// Validate checks that every turn budget is usable.
func (c Config) Validate() error {
	l := c.Limits
	switch {
	case l.MaxSteps == 0:
		return errors.New("max steps must be greater than 0")
	case l.MaxToolCalls == 0:
		return errors.New("max tool calls must be greater than 0")
	case l.MaxToolCallsPerStep == 0:
		return errors.New("max tool calls per step must be greater than 0")
	case l.MaxConsecutiveToolSteps == 0:
		return errors.New("max consecutive tool steps must be greater than 0")
	case l.MaxInputChars <= 0:
		return errors.New("max input chars must be greater than 0")
	case l.MaxOutputChars <= 0:
		return errors.New("max output chars must be greater than 0")
	}
	return nil
}
