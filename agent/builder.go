// Loop builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden

package agent

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/richinex/notewright/config"
)

// Builder provides fluent configuration for creating loops.
// Usage: agent.NewBuilder().Model(m).Dispatcher(d).Build()
type Builder struct {
	systemPrompt string
	limits       config.Limits
	model        Model
	dispatcher   ToolDispatcher
	logger       *slog.Logger
}

// NewBuilder creates a builder with the default prompt and limits.
func NewBuilder() *Builder {
	defaults := DefaultConfig()
	return &Builder{
		systemPrompt: defaults.SystemPrompt,
		limits:       defaults.Limits,
	}
}

// SystemPrompt sets the system prompt for new conversations.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.systemPrompt = prompt
	return b
}

// Limits sets the turn budgets.
func (b *Builder) Limits(limits config.Limits) *Builder {
	b.limits = limits
	return b
}

// Model sets the model client.
func (b *Builder) Model(m Model) *Builder {
	b.model = m
	return b
}

// Dispatcher sets the tool dispatcher.
func (b *Builder) Dispatcher(d ToolDispatcher) *Builder {
	b.dispatcher = d
	return b
}

// Logger sets the logger.
func (b *Builder) Logger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates the configuration and creates the loop.
func (b *Builder) Build() (*Loop, error) {
	if b.model == nil {
		return nil, errors.New("agent: model is required")
	}
	if b.dispatcher == nil {
		return nil, errors.New("agent: dispatcher is required")
	}
	cfg := Config{SystemPrompt: b.systemPrompt, Limits: b.limits}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return New(cfg, b.model, b.dispatcher, WithLogger(b.logger)), nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Loop {
	loop, err := b.Build()
	if err != nil {
		panic(err)
	}
	return loop
}
