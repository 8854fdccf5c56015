package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mcpcore/mcpcore/internal/ctxkey"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// ToolHandler executes a tool call. ctx carries the invoking session's id
// (ctxkey.SessionIDKey) so a handler can itself issue server-to-client
// requests such as elicitation.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (ToolResult, error)

// ParamSpec describes one argument binding rule for a tool, per §4.7's
// "exact match -> default -> required-missing" order.
type ParamSpec struct {
	Name     string
	Default  json.RawMessage
	Required bool
}

// Tool is one registered tool descriptor plus its handler.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	Params  []ParamSpec `json:"-"`
	Handler ToolHandler `json:"-"`
}

func (t Tool) clone() Tool {
	out := t
	out.Params = append([]ParamSpec(nil), t.Params...)
	return out
}

// ToolRegistry is the thread-safe, read-mostly table of registered tools
// (§4.7, §5). Writes hold the exclusive lock so concurrent readers never
// observe a half-updated list.
type ToolRegistry struct {
	mu          sync.RWMutex
	byName      map[string]Tool
	order       []string
	onEmit      func()
	fingerprint uint64
}

// NewToolRegistry creates an empty registry. onListChanged, if non-nil, is
// invoked after a mutating call that changes the registered set's content
// fingerprint — the server wires it to emit
// "tools/list_changed" only when the peer negotiated the listChanged
// capability (§9 "list_changed semantics").
func NewToolRegistry(onListChanged func()) *ToolRegistry {
	return &ToolRegistry{byName: make(map[string]Tool), onEmit: onListChanged}
}

// Register inserts a tool. Without overwrite, registering an existing name
// fails and leaves the registry untouched (§8 idempotence). With
// overwrite=true, the previous descriptor is fully replaced.
func (r *ToolRegistry) Register(t Tool, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.byName[t.Name]
	if exists && !overwrite {
		return fmt.Errorf("mcpserver: tool %q already registered", t.Name)
	}
	r.byName[t.Name] = t.clone()
	if !exists {
		r.order = append(r.order, t.Name)
	}
	r.notify()
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.notify()
}

// notify recomputes the registry's content fingerprint and invokes onEmit
// only if it changed, so re-registering an identical descriptor doesn't
// emit a spurious tools/list_changed.
func (r *ToolRegistry) notify() {
	if r.onEmit == nil {
		return
	}
	fp := fingerprintJSON(r.orderedLocked())
	if fp == r.fingerprint {
		return
	}
	r.fingerprint = fp
	r.onEmit()
}

func (r *ToolRegistry) orderedLocked() []Tool {
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// List returns defensive clones of every registered tool in registration
// order.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].clone())
	}
	return out
}

// Lookup returns a defensive clone of the named tool.
func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return t.clone(), true
}

// Len reports how many tools are registered.
func (r *ToolRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CallParams is the parsed body of an inbound tools/call request.
type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// HandleToolsList implements the tools/list RPC method.
func (r *ToolRegistry) HandleToolsList(_ context.Context, _ json.RawMessage) (interface{}, *mcp.ErrorObject) {
	return map[string]interface{}{"tools": r.List()}, nil
}

// HandleToolsCall implements the tools/call RPC method: looks up the tool,
// binds arguments per §4.7's rules, and invokes the handler inside a
// session-scoped context.
func (r *ToolRegistry) HandleToolsCall(ctx context.Context, sessionID string, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	var p CallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("invalid tools/call params: %v", err))
	}
	tool, ok := r.Lookup(p.Name)
	if !ok {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("unknown tool: %s", p.Name))
	}

	bound, err := bindArguments(tool.Params, p.Arguments)
	if err != nil {
		var be *bindingError
		if errors.As(err, &be) {
			return nil, be.errorObject()
		}
		return nil, mcp.NewError(mcp.CodeInvalidParams, err.Error())
	}

	invokeCtx := context.WithValue(ctx, ctxkey.SessionIDKey{}, sessionID)
	result, err := tool.Handler(invokeCtx, bound)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternalError, "tool invocation failed")
	}
	return result, nil
}

// bindingError reports tools/call argument-binding failures with enough
// structure for a caller to highlight exactly which fields were wrong,
// grounded in the teacher's formatValidationErrors/FieldError pattern
// (internal/config/validator.go) of collecting every failing field rather
// than stopping at the first.
type bindingError struct {
	Missing []string
	Invalid []string
}

func (e *bindingError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required arguments: %s", strings.Join(e.Missing, ", ")))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, fmt.Sprintf("invalid arguments: %s", strings.Join(e.Invalid, ", ")))
	}
	return strings.Join(parts, "; ")
}

// bindingErrorData is the structured -32602 "data" payload: a client can
// read data.missingFields/data.invalidFields instead of parsing message.
type bindingErrorData struct {
	MissingFields []string `json:"missingFields,omitempty"`
	InvalidFields []string `json:"invalidFields,omitempty"`
}

func (e *bindingError) errorObject() *mcp.ErrorObject {
	return mcp.NewErrorWithData(mcp.CodeInvalidParams, e.Error(), bindingErrorData{
		MissingFields: e.Missing,
		InvalidFields: e.Invalid,
	})
}

// bindArguments applies §4.7's argument-binding order: exact key match
// (falling back to a case-insensitive match, since the input parser is
// tolerant of key case even though canonical lookup is exact), else the
// param's declared default, else a required-missing error. Every failing
// field is collected rather than returning on the first, so the caller
// gets the complete picture in one round trip.
func bindArguments(params []ParamSpec, raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, &bindingError{Invalid: []string{"arguments"}}
		}
	}

	lowered := make(map[string]string, len(args))
	for k := range args {
		lowered[strings.ToLower(k)] = k
	}

	bound := make(map[string]json.RawMessage, len(params))
	var missing []string
	for _, p := range params {
		if v, ok := args[p.Name]; ok {
			bound[p.Name] = v
			continue
		}
		if orig, ok := lowered[strings.ToLower(p.Name)]; ok {
			bound[p.Name] = args[orig]
			continue
		}
		if p.Default != nil {
			bound[p.Name] = p.Default
			continue
		}
		if p.Required {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &bindingError{Missing: missing}
	}
	// Pass through any extra caller-supplied fields not declared as params,
	// so handlers doing their own validation still see the full payload.
	for k, v := range args {
		if _, ok := bound[k]; !ok {
			bound[k] = v
		}
	}
	out, err := json.Marshal(bound)
	if err != nil {
		return nil, fmt.Errorf("mcpserver: marshal bound arguments: %w", err)
	}
	return out, nil
}
