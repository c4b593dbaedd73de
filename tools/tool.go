// Package tools provides the tool system for the agent loop.
//
// Information Hiding:
// - Tool execution details hidden behind interface
// - Argument schemas derived from tool metadata
// - Registry implementation details hidden from consumers
// - Policy and retry decisions owned by Dispatcher, not by tools
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/richinex/notewright/llm"
)

// Tool names.
const (
	SearchNotesName = "search_notes"
	FetchURLName    = "fetch_url"
	SaveNoteName    = "save_note"
)

// ToolParameter defines a parameter schema for a tool.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Minimum     *int   `json:"minimum,omitempty"`
	Maximum     *int   `json:"maximum,omitempty"`
}

// ToolMetadata describes what a tool does and how to use it.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`

	// RetryTransient grants exactly one retry after a transient failure.
	RetryTransient bool `json:"-"`
}

// String returns a string representation of the tool metadata.
func (m ToolMetadata) String() string {
	return fmt.Sprintf("%s: %s", m.Name, m.Description)
}

// Definition converts the metadata into the JSON Schema form providers
// expect. Every schema forbids additional properties.
func (m ToolMetadata) Definition() llm.ToolDefinition {
	properties := make(map[string]interface{}, len(m.Parameters))
	required := make([]string, 0, len(m.Parameters))
	for _, p := range m.Parameters {
		prop := map[string]interface{}{
			"type":        p.ParamType,
			"description": p.Description,
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return llm.ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters: map[string]interface{}{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
	}
}

// Tool is the interface that all tools must implement.
//
// Execute receives arguments that already passed strict parsing and policy
// checks. It returns a JSON object on success. Failures should be built
// with the helpers in errors.go so the dispatcher can classify them.
type Tool interface {
	// Metadata returns tool metadata (name, description, parameters).
	Metadata() ToolMetadata

	// Execute runs the tool with parsed arguments.
	Execute(ctx context.Context, args Args) (json.RawMessage, error)
}

// Result is the successful outcome of one dispatched tool call.
type Result struct {
	Tool     string          `json:"tool"`
	CallID   string          `json:"call_id"`
	Output   json.RawMessage `json:"output"`
	Latency  time.Duration   `json:"latency"`
	Attempts int             `json:"attempts"`
}

func intPtr(v int) *int { return &v }
