// Package agent provides the bounded tool-calling loop.
//
// Contains the collaborator interfaces, the turn request and the outcome
// types produced by one turn.
package agent

import (
	"context"
	"encoding/json"

	"github.com/richinex/notewright/answerformat"
	"github.com/richinex/notewright/llm"
	"github.com/richinex/notewright/tools"
)

// Model returns either a final answer or a batch of tool calls for the
// conversation so far. *llm.Client satisfies it.
type Model interface {
	Complete(ctx context.Context, history []llm.ChatMessage, defs []llm.ToolDefinition) (llm.Completion, error)
}

// ToolDispatcher executes tool calls and advertises their schemas.
// *tools.Dispatcher satisfies it.
type ToolDispatcher interface {
	Dispatch(ctx context.Context, call llm.ToolCall) (tools.Result, error)
	Definitions() []llm.ToolDefinition
}

// TurnRequest is one user input plus the conversation it continues.
type TurnRequest struct {
	Input   string
	History []llm.ChatMessage

	// Format is the expected answer format. The zero value means plain text.
	Format answerformat.Format
}

// ExecutedToolCall records one successful dispatch.
type ExecutedToolCall struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Output    json.RawMessage `json:"output"`
	LatencyMs uint64          `json:"latency_ms"`
	Attempts  int             `json:"attempts"`
}

// Trace summarizes what a turn did.
type Trace struct {
	Steps          uint32          `json:"steps"`
	ModelCalls     uint32          `json:"model_calls"`
	ToolCallsTotal uint32          `json:"tool_calls_total"`
	ModelLatencyMs uint64          `json:"model_latency_ms"`
	ToolLatencyMs  uint64          `json:"tool_latency_ms"`
	TurnLatencyMs  uint64          `json:"turn_latency_ms"`
	ToolsUsed      []string        `json:"tools_used"`
	InputChars     int             `json:"input_chars"`
	OutputChars    int             `json:"output_chars"`
	Reprompted     bool            `json:"reprompted"`
	TokenUsage     *llm.TokenUsage `json:"token_usage,omitempty"`
}

// Outcome is the result of one turn. On failure RunTurn still returns the
// partial outcome alongside the error.
type Outcome struct {
	TurnID    string             `json:"turn_id"`
	FinalText string             `json:"final_text"`
	Trace     Trace              `json:"trace"`
	ToolCalls []ExecutedToolCall `json:"tool_calls"`

	// History is the conversation including this turn, for multi-turn callers.
	History []llm.ChatMessage `json:"-"`
}

// UsedTool reports whether the turn dispatched the named tool.
func (o Outcome) UsedTool(name string) bool {
	for _, t := range o.Trace.ToolsUsed {
		if t == name {
			return true
		}
	}
	return false
}
