// Package llm provides shared data models for LLM providers.
package llm

import "encoding/json"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage represents a chat message with role and content.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // For assistant messages with tool calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // For tool result messages
	ToolName   string     `json:"tool_name,omitempty"`    // For tool result messages
}

// ToolCall represents a tool call from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition defines a tool that the LLM can call.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// SystemMessage creates a system message.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// UserMessage creates a user message.
func UserMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleAssistant,
		Content: content,
	}
}

// AssistantToolCallsMessage records the tool calls an assistant turn requested.
func AssistantToolCallsMessage(content string, calls []ToolCall) ChatMessage {
	return ChatMessage{
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	}
}

// ToolResultMessage carries a tool's output back to the model.
func ToolResultMessage(call ToolCall, output string) ChatMessage {
	return ChatMessage{
		Role:       RoleTool,
		Content:    output,
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// LLMResponse represents a response from an LLM provider.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall // Tool calls requested by the LLM
	Usage     *TokenUsage
}

// TokenUsage contains token usage statistics.
type TokenUsage struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// Add accumulates other into u. A nil other is ignored.
func (u *TokenUsage) Add(other *TokenUsage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// CompletionKind discriminates the two shapes a model turn can take.
type CompletionKind int

const (
	// FinalText means the model answered without requesting tools.
	FinalText CompletionKind = iota
	// ToolCalls means the model requested one or more tool invocations.
	ToolCalls
)

func (k CompletionKind) String() string {
	if k == ToolCalls {
		return "tool_calls"
	}
	return "final_text"
}

// Completion is the provider-agnostic result of one model call.
// Text is the answer for FinalText and optional commentary for ToolCalls.
type Completion struct {
	Kind      CompletionKind
	Text      string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}
