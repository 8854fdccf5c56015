// Package mcpclient implements the client-side service surface of §4.8: a
// typed facade over the four RPC groups (tools, prompts, resources,
// completions), an elicitation-handler slot the server can call back into,
// and a small set of broadcast events a host application subscribes to.
//
// Grounded on the teacher's outbound MCP adapters
// (internal/adapter/outbound/mcp/{http_client,stdio_client}.go), which this
// package supersedes: those adapters forwarded raw upstream bytes for a
// security proxy; Client instead owns a full client-side session.Session and
// exposes the protocol's RPCs as typed Go methods.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mcpcore/mcpcore/internal/otelx"
	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// DefaultRequestTimeout bounds any RPC that doesn't pass its own deadline.
const DefaultRequestTimeout = 30 * time.Second

// ElicitationHandler answers a server-initiated elicitation/create request.
// SetElicitationHandler(nil) restores the default auto-decline behavior of
// §4.9.
type ElicitationHandler func(ctx context.Context, message string, schema json.RawMessage) (action string, content map[string]interface{})

// Client is the host-application-facing facade over one MCP session acting
// as the client side (§4.8). Build one per upstream connection with New,
// call Initialize once the transport is up, then use the typed RPC methods.
type Client struct {
	sess    *session.Session
	info    session.PeerInfo
	timeout time.Duration
	catalog *Catalog

	mu       sync.RWMutex
	elicitFn ElicitationHandler

	events eventBus
	tracer trace.Tracer
}

// Option configures New.
type Option func(*Client)

// WithTracer wraps elicitation/create and every outbound RPC span with
// tracer, covering the elicitation round trip (§4.9) described in the
// domain dependency wiring.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// clientNegotiator satisfies session.Negotiator trivially: a client-side
// session never receives an inbound "initialize" request (it issues one
// outbound via Initialize), so these values are never read by the router,
// but the interface must still be satisfiable to build the session's Router.
type clientNegotiator struct{ info session.PeerInfo }

func (n clientNegotiator) ServerInfo() session.PeerInfo    { return n.info }
func (n clientNegotiator) Capabilities() session.Capabilities { return session.Capabilities{} }
func (n clientNegotiator) Instructions() string            { return "" }

// New builds a Client identifying itself as info, bound to transport t
// (typically a stdio.Transport wrapping a spawned server's stdin, or an SSE
// client transport posting to the remote endpoint). The returned Client owns
// a private Router carrying the one inbound method a client must answer:
// elicitation/create (§4.9), plus the list-changed notifications that
// invalidate its PromptResourceCatalog.
func New(info session.PeerInfo, t session.Transport, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	c := &Client{info: info, timeout: timeout}
	for _, opt := range opts {
		opt(c)
	}
	router := session.NewRouter(clientNegotiator{info: info})
	c.catalog = newCatalog(c)
	router.Handle("elicitation/create", otelx.WrapRequestHandler(c.tracer, "elicitation/create", c.handleElicitationCreate))
	router.HandleNotification("prompts/list_changed", func(_ context.Context, _ *session.Session, _ json.RawMessage) {
		c.catalog.invalidatePrompts()
		c.events.emitPromptsUpdated()
	})
	router.HandleNotification("resources/list_changed", func(_ context.Context, _ *session.Session, _ json.RawMessage) {
		c.catalog.invalidateResources()
		c.events.emitResourcesUpdated()
	})
	sess := session.New("", t, router, nil, nil)
	sess.OnClose(func(*session.Session) { c.events.emitClose() })
	c.sess = sess
	return c
}

// Session returns the underlying session, e.g. so a transport's Serve loop
// can dispatch frames into it.
func (c *Client) Session() *session.Session { return c.sess }

// SetElicitationHandler installs (or, with nil, clears) the callback used to
// answer server-initiated elicitation/create requests. Safe to call at any
// time, including while requests are in flight.
func (c *Client) SetElicitationHandler(h ElicitationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elicitFn = h
}

// Events returns the subscription point for the client's broadcast events:
// OnError, OnClose, OnPromptsUpdated and OnResourcesUpdated. No event is
// emitted per response or per notification.
func (c *Client) Events() *eventBus { return &c.events }

// Initialize performs the initialize -> notifications/initialized handshake
// (§4.6, scenario 1 of §8) and returns the negotiated result.
func (c *Client) Initialize(ctx context.Context, caps session.Capabilities) (session.InitializeResult, error) {
	params := session.InitializeParams{
		ProtocolVersion: session.SupportedProtocolVersions[0],
		ClientInfo:      c.info,
	}
	if caps != nil {
		raw, err := json.Marshal(caps)
		if err != nil {
			return session.InitializeResult{}, fmt.Errorf("mcpclient: marshal capabilities: %w", err)
		}
		params.Capabilities = raw
	}

	resp, err := c.call(ctx, "initialize", params)
	if err != nil {
		return session.InitializeResult{}, err
	}
	var result session.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return session.InitializeResult{}, fmt.Errorf("mcpclient: malformed initialize result: %w", err)
	}
	if err := c.sess.SendNotification(ctx, "notifications/initialized", nil); err != nil {
		return session.InitializeResult{}, fmt.Errorf("mcpclient: sending notifications/initialized: %w", err)
	}
	// The client originates both halves of the handshake, so nothing in
	// Dispatch ever drives this session's own state machine to Ready (see
	// Session.MarkReady) -- without this, a server-initiated elicitation/create
	// arriving right after initialize would be rejected with -32002.
	c.sess.MarkReady()
	return result, nil
}

// Ping issues the keepalive ping RPC (§6).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "ping", nil)
	return err
}

func (c *Client) call(ctx context.Context, method string, params interface{}) (*mcp.Response, error) {
	if c.tracer != nil {
		var span trace.Span
		ctx, span = c.tracer.Start(ctx, "mcp.call "+method)
		defer span.End()
	}
	resp, err := c.sess.SendRequestWithTimeout(ctx, method, params, c.timeout)
	if err != nil {
		c.events.emitError(err)
		return nil, err
	}
	if resp.IsError() {
		return resp, resp.Error
	}
	return resp, nil
}

func (c *Client) handleElicitationCreate(ctx context.Context, _ *session.Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
	var body struct {
		Message         string          `json:"message"`
		RequestedSchema json.RawMessage `json:"requestedSchema"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return nil, mcp.NewError(mcp.CodeInvalidParams, "invalid elicitation/create params")
	}

	c.mu.RLock()
	handler := c.elicitFn
	c.mu.RUnlock()

	if handler == nil {
		return map[string]interface{}{"action": "decline"}, nil
	}

	action, content := handler(ctx, body.Message, body.RequestedSchema)
	if action == "" {
		action = "decline"
	}
	result := map[string]interface{}{"action": action}
	if action == "accept" {
		result["content"] = content
	}
	return result, nil
}
