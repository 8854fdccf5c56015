package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// PromptMessage is one opaque message object a prompt factory produces;
// its shape is caller-defined (role + content, typically), so it is kept as
// raw JSON end to end rather than modeled field-by-field.
type PromptMessage = json.RawMessage

// PromptFactory builds the message array for a prompts/get call. ctx is
// cancelled per §4.7 ("under a cancellation token") when the enclosing
// request is cancelled.
type PromptFactory func(ctx context.Context, arguments json.RawMessage) ([]PromptMessage, error)

// Prompt is one registered prompt descriptor.
type Prompt struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Arguments   json.RawMessage `json:"arguments,omitempty"`

	Factory PromptFactory `json:"-"`
}

func (p Prompt) clone() Prompt { return p }

// PromptRegistry is the thread-safe table of registered prompts.
type PromptRegistry struct {
	mu          sync.RWMutex
	byName      map[string]Prompt
	order       []string
	onEmit      func()
	fingerprint uint64
}

// NewPromptRegistry creates an empty registry with an optional
// list-changed emit hook.
func NewPromptRegistry(onListChanged func()) *PromptRegistry {
	return &PromptRegistry{byName: make(map[string]Prompt), onEmit: onListChanged}
}

// Register inserts a prompt, following the same overwrite contract as
// ToolRegistry.Register.
func (r *PromptRegistry) Register(p Prompt, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.byName[p.Name]
	if exists && !overwrite {
		return fmt.Errorf("mcpserver: prompt %q already registered", p.Name)
	}
	r.byName[p.Name] = p.clone()
	if !exists {
		r.order = append(r.order, p.Name)
	}
	r.notify()
	return nil
}

// notify invokes onEmit only when the registered set's content fingerprint
// actually changed, per ToolRegistry.notify.
func (r *PromptRegistry) notify() {
	if r.onEmit == nil {
		return
	}
	out := make([]Prompt, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	fp := fingerprintJSON(out)
	if fp == r.fingerprint {
		return
	}
	r.fingerprint = fp
	r.onEmit()
}

// List returns defensive clones in registration order.
func (r *PromptRegistry) List() []Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Prompt, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].clone())
	}
	return out
}

// Lookup returns a defensive clone of the named prompt.
func (r *PromptRegistry) Lookup(name string) (Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Len reports how many prompts are registered.
func (r *PromptRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// GetParams is the parsed body of an inbound prompts/get request.
type GetParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// HandlePromptsList implements prompts/list.
func (r *PromptRegistry) HandlePromptsList(_ context.Context, _ json.RawMessage) (interface{}, *mcp.ErrorObject) {
	return map[string]interface{}{"prompts": r.List()}, nil
}

// HandlePromptsGet implements prompts/get.
func (r *PromptRegistry) HandlePromptsGet(ctx context.Context, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	var p GetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("invalid prompts/get params: %v", err))
	}
	prompt, ok := r.Lookup(p.Name)
	if !ok {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("unknown prompt: %s", p.Name))
	}
	messages, err := prompt.Factory(ctx, p.Arguments)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternalError, "prompt generation failed")
	}
	return map[string]interface{}{"description": prompt.Description, "messages": messages}, nil
}
