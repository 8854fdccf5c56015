package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// CompletionRef identifies what is being completed: a prompt or a resource
// template, named either by Name (prompts) or URI (resources).
type CompletionRef struct {
	Type string `json:"type"` // "ref/prompt" | "ref/resource"
	Name string `json:"name,omitempty"`
	URI  string `json:"uri,omitempty"`
}

func (r CompletionRef) key() string {
	if r.URI != "" {
		return r.Type + ":" + r.URI
	}
	return r.Type + ":" + r.Name
}

// CompletionArgument is the argument being completed and its partial value.
type CompletionArgument struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// CompletionResult is what a completion handler returns (§4.7).
type CompletionResult struct {
	Values  []string `json:"values"`
	Total   *int     `json:"total,omitempty"`
	HasMore bool     `json:"hasMore,omitempty"`
}

// CompletionHandler computes suggestions for one (ref, argument) pair.
type CompletionHandler func(ctx context.Context, argument CompletionArgument, completionCtx json.RawMessage) (CompletionResult, error)

// CompletionRegistry maps (ref.type, ref.name|ref.uri) to a handler. The
// server advertises the "completions" capability only once at least one
// handler is registered (§4.7).
type CompletionRegistry struct {
	mu       sync.RWMutex
	handlers map[string]CompletionHandler
	cache    *completionCache
}

// NewCompletionRegistry creates an empty registry.
func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{handlers: make(map[string]CompletionHandler), cache: newCompletionCache()}
}

// Register binds a handler to a ref.
func (r *CompletionRegistry) Register(ref CompletionRef, h CompletionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref.key()] = h
}

// Len reports how many refs have a registered handler, used to decide
// whether to advertise the completions capability.
func (r *CompletionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// CompleteParams is the parsed body of an inbound completion/complete request.
type CompleteParams struct {
	Ref      CompletionRef      `json:"ref"`
	Argument CompletionArgument `json:"argument"`
	Context  json.RawMessage    `json:"context,omitempty"`
}

// HandleComplete implements completion/complete.
func (r *CompletionRegistry) HandleComplete(ctx context.Context, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	var p CompleteParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("invalid completion/complete params: %v", err))
	}

	r.mu.RLock()
	handler, ok := r.handlers[p.Ref.key()]
	r.mu.RUnlock()
	if !ok {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("no completion handler for ref %s", p.Ref.key()))
	}

	if cached, ok := r.cache.get(p.Ref, p.Argument, p.Context); ok {
		return cached, nil
	}

	result, err := handler(ctx, p.Argument, p.Context)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternalError, "completion failed")
	}
	r.cache.put(p.Ref, p.Argument, p.Context, result)
	return result, nil
}
