// Tool registry.
//
// Information Hiding:
// - Tool storage and lookup hidden behind Registry
// - Advertisement order fixed at registration
// - Policy checks and retry rules hidden behind Dispatcher

package tools

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/richinex/notewright/llm"
)

// Registry is a name-indexed set of tools that remembers registration
// order. Lookups may run concurrently with each other.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Tool
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Tool)}
}

// Register appends tool. A second tool with the same name is rejected.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[name]; dup {
		return fmt.Errorf("tool '%s' already registered", name)
	}
	r.byKey[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get looks a tool up by its exact name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byKey[name]
	return tool, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns a copy of the registered names in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// List returns each tool's metadata in order.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolMetadata, len(r.order))
	for i, name := range r.order {
		out[i] = r.byKey[name].Metadata()
	}
	return out
}

// Definitions returns the schemas advertised to the model, in order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	list := r.List()
	defs := make([]llm.ToolDefinition, len(list))
	for i, meta := range list {
		defs[i] = meta.Definition()
	}
	return defs
}

// NewDefaultRegistry registers search_notes, fetch_url and save_note, in
// that order, bound to policy. A nil client gets a fresh http.Client.
func NewDefaultRegistry(policy *Policy, client *http.Client) (*Registry, error) {
	registry := NewRegistry()
	for _, t := range []Tool{
		NewSearchNotesTool(policy.NotesDir()),
		NewFetchURLTool(policy, client),
		NewSaveNoteTool(policy),
	} {
		if err := registry.Register(t); err != nil {
			return nil, fmt.Errorf("failed to register default tools: %w", err)
		}
	}
	return registry, nil
}
