package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// RequestHandler answers a JSON-RPC request. A non-nil ErrorObject return
// short-circuits to an error response; otherwise result is marshaled into
// the response's result field. Handlers run each on their own scheduler
// unit per §4.4/§5 — a slow handler never blocks another request on the
// same session.
type RequestHandler func(ctx context.Context, sess *Session, params json.RawMessage) (result interface{}, errObj *mcp.ErrorObject)

// NotificationHandler processes a one-way JSON-RPC notification. Panics are
// recovered and logged by the dispatcher, never surfaced to the peer (there
// is no response channel for a notification).
type NotificationHandler func(ctx context.Context, sess *Session, params json.RawMessage)

// Router is the process-wide, shared table of method handlers every session
// dispatches into. It is safe for concurrent registration and lookup; the
// server composes its tool/prompt/resource/completion registries on top of
// one Router instance via Handle/HandleNotification.
type Router struct {
	mu            sync.RWMutex
	requests      map[string]RequestHandler
	notifications map[string]NotificationHandler
	negotiator    Negotiator
}

// NewRouter builds a Router pre-wired with the three core methods every MCP
// session needs regardless of what the server exposes: initialize, the
// notifications/initialized transition, and ping.
func NewRouter(neg Negotiator) *Router {
	r := &Router{
		requests:      make(map[string]RequestHandler),
		notifications: make(map[string]NotificationHandler),
		negotiator:    neg,
	}
	r.requests["initialize"] = r.handleInitialize
	r.requests["ping"] = handlePing
	r.notifications["notifications/initialized"] = handleInitialized
	return r
}

// Handle registers (or replaces) the handler for a request method. Intended
// for the server service surface (tools/list, tools/call, ...) to call at
// construction time, before any session is accepted.
func (r *Router) Handle(method string, h RequestHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests[method] = h
}

// HandleNotification registers (or replaces) the handler for a notification
// method (e.g. notifications/cancelled).
func (r *Router) HandleNotification(method string, h NotificationHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[method] = h
}

func (r *Router) requestHandler(method string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.requests[method]
	return h, ok
}

func (r *Router) notificationHandler(method string) (NotificationHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.notifications[method]
	return h, ok
}

func (r *Router) handleInitialize(_ context.Context, sess *Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	if sess.State() != StateNew {
		return nil, mcp.NewError(mcp.CodeInvalidRequest, "initialize must be the first request on a session")
	}

	var p InitializeParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("invalid initialize params: %v", err))
		}
	}

	negotiated, ok := NegotiateVersion(SupportedProtocolVersions, p.ProtocolVersion)
	if !ok {
		return nil, mcp.NewError(mcp.CodeInvalidParams, fmt.Sprintf("unsupported protocol version: %s", p.ProtocolVersion))
	}

	var peerCaps Capabilities
	if len(p.Capabilities) > 0 {
		_ = json.Unmarshal(p.Capabilities, &peerCaps)
	}
	if peerCaps == nil {
		peerCaps = Capabilities{}
	}

	sess.completeInitialize(negotiated, p.ClientInfo, peerCaps)

	return InitializeResult{
		ProtocolVersion: negotiated,
		ServerInfo:      r.negotiator.ServerInfo(),
		Capabilities:    r.negotiator.Capabilities(),
		Instructions:    r.negotiator.Instructions(),
	}, nil
}

func handlePing(_ context.Context, _ *Session, _ json.RawMessage) (interface{}, *mcp.ErrorObject) {
	return struct{}{}, nil
}

func handleInitialized(_ context.Context, sess *Session, _ json.RawMessage) {
	sess.transitionReady()
}
