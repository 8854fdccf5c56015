package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// ResourceReader reads one resource's current content.
type ResourceReader func(ctx context.Context, uri string) ([]ResourceContent, error)

// Resource is one registered resource descriptor.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	Reader ResourceReader `json:"-"`
}

func (r Resource) clone() Resource { return r }

// ResourceRegistry is the thread-safe table of registered resources. URI
// comparison is case-insensitive per §4.7, so lookups canonicalize on a
// lowercased key while List preserves the original casing for display.
type ResourceRegistry struct {
	mu          sync.RWMutex
	byURI       map[string]Resource // keyed by strings.ToLower(uri)
	order       []string            // original-case uris, registration order
	onEmit      func()
	fingerprint uint64
}

// NewResourceRegistry creates an empty registry with an optional
// list-changed emit hook.
func NewResourceRegistry(onListChanged func()) *ResourceRegistry {
	return &ResourceRegistry{byURI: make(map[string]Resource), onEmit: onListChanged}
}

// Register inserts a resource, following the same overwrite contract as
// ToolRegistry.Register.
func (r *ResourceRegistry) Register(res Resource, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(res.URI)
	_, exists := r.byURI[key]
	if exists && !overwrite {
		return fmt.Errorf("mcpserver: resource %q already registered", res.URI)
	}
	r.byURI[key] = res.clone()
	if !exists {
		r.order = append(r.order, res.URI)
	}
	r.notify()
	return nil
}

// notify invokes onEmit only when the registered set's content fingerprint
// actually changed, per ToolRegistry.notify.
func (r *ResourceRegistry) notify() {
	if r.onEmit == nil {
		return
	}
	out := make([]Resource, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.byURI[strings.ToLower(uri)])
	}
	fp := fingerprintJSON(out)
	if fp == r.fingerprint {
		return
	}
	r.fingerprint = fp
	r.onEmit()
}

// List returns defensive clones in registration order.
func (r *ResourceRegistry) List() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.order))
	for _, uri := range r.order {
		out = append(out, r.byURI[strings.ToLower(uri)].clone())
	}
	return out
}

// Lookup returns a defensive clone of the resource matching uri,
// case-insensitively.
func (r *ResourceRegistry) Lookup(uri string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byURI[strings.ToLower(uri)]
	return res, ok
}

// Len reports how many resources are registered.
func (r *ResourceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ReadParams is the parsed body of an inbound resources/read request.
type ReadParams struct {
	URI string `json:"uri"`
}

// HandleResourcesList implements resources/list.
func (r *ResourceRegistry) HandleResourcesList(_ context.Context, _ json.RawMessage) (interface{}, *mcp.ErrorObject) {
	return map[string]interface{}{"resources": r.List()}, nil
}

// HandleResourcesRead implements resources/read.
func (r *ResourceRegistry) HandleResourcesRead(ctx context.Context, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	var p ReadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("invalid resources/read params: %v", err))
	}
	res, ok := r.Lookup(p.URI)
	if !ok {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("unknown resource: %s", p.URI))
	}
	contents, err := res.Reader(ctx, res.URI)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternalError, "resource read failed")
	}
	return map[string]interface{}{"contents": contents}, nil
}
