// Package session implements the per-connection state machine (§4.4, §4.6),
// the shared method router, and the process-wide session registry for the
// MCP protocol core.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpcore/mcpcore/internal/ctxkey"
	"github.com/mcpcore/mcpcore/internal/rpc"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// Transport is the per-session abstraction a transport adapter (stdio, SSE)
// implements to let Session write frames. Send must serialize concurrent
// callers itself (§4.2/§5: "writes on the same transport are serialized");
// Session never holds its own write lock around it.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Close() error
}

// DefaultShutdownGrace bounds how long Close waits for in-flight handlers
// before draining pending-outbound awaiters regardless, per SPEC_FULL.md's
// graceful-shutdown-draining addition.
const DefaultShutdownGrace = 5 * time.Second

// Session is one logical, stateful pairing of client and server bound to a
// single transport connection (§3 Data Model).
type Session struct {
	id        string
	transport Transport
	router    *Router
	logger    *slog.Logger

	mu                sync.RWMutex
	state             State
	negotiatedVersion string
	peerInfo          PeerInfo
	peerCapabilities  Capabilities
	localCapabilities Capabilities
	subscriptions     map[string]struct{}

	pendingOutbound *rpc.Correlator

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	inflight sync.WaitGroup

	onClose []func(*Session)

	dispatchMetrics DispatchRecorder
}

// DispatchRecorder observes how long one dispatched request's handler took
// to run, by method. internal/metrics.Metrics satisfies this via
// ObserveDispatch; declared locally so session doesn't have to import
// internal/metrics just to name the parameter type.
type DispatchRecorder interface {
	ObserveDispatch(method string, d time.Duration)
}

// New creates a session bound to transport t. localCaps is this side's
// capability set as reported by LocalCapabilities, or nil for a client-side
// session; the initialize response itself is built from the Router's
// Negotiator, not from localCaps.
func New(id string, t Transport, router *Router, localCaps Capabilities, logger *slog.Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:                id,
		transport:         t,
		router:            router,
		logger:            logger,
		state:             StateNew,
		localCapabilities: localCaps,
		subscriptions:     make(map[string]struct{}),
		pendingOutbound:   rpc.NewCorrelator(),
		cancels:           make(map[string]context.CancelFunc),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// SetDispatchRecorder installs the recorder notified of every dispatched
// request's handler duration. Call before serving any frames; nil (the
// default) skips recording.
func (s *Session) SetDispatchRecorder(r DispatchRecorder) {
	s.mu.Lock()
	s.dispatchMetrics = r
	s.mu.Unlock()
}

// PendingOutboundLen reports how many requests this session originated
// (e.g. elicitation/create) that are still awaiting a response, for
// internal/metrics' PendingRequests gauge.
func (s *Session) PendingOutboundLen() int {
	return s.pendingOutbound.Len()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NegotiatedVersion returns the protocol version agreed during initialize,
// or "" before that completes.
func (s *Session) NegotiatedVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.negotiatedVersion
}

// PeerInfo returns the peer's declared identity, valid once initialize has
// completed.
func (s *Session) PeerInfo() PeerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerInfo
}

// PeerCapabilities returns a defensive clone of the peer's negotiated
// capability set.
func (s *Session) PeerCapabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerCapabilities.Clone()
}

// LocalCapabilities returns a defensive clone of this side's capability set.
func (s *Session) LocalCapabilities() Capabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.localCapabilities.Clone()
}

// HasPeerFeature reports whether the peer negotiated support for a named
// capability (e.g. "listChanged" nested under "tools" — callers check the
// parent key's presence, which is all the negotiation contract requires).
func (s *Session) HasPeerFeature(feature string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.peerCapabilities.Has(feature)
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) completeInitialize(version string, peer PeerInfo, caps Capabilities) {
	s.mu.Lock()
	s.negotiatedVersion = version
	s.peerInfo = peer
	s.peerCapabilities = caps
	s.state = StateInitializing
	s.mu.Unlock()
}

func (s *Session) transitionReady() {
	s.mu.Lock()
	if s.state < StateReady {
		s.state = StateReady
	}
	s.mu.Unlock()
}

// MarkReady advances a client-side session straight to Ready. A server-side
// session reaches Ready through the ordinary dispatch path (it receives the
// inbound "initialize" request, then "notifications/initialized"), but a
// client-side session originates both of those instead of receiving them, so
// nothing in Dispatch ever drives its own state machine forward. The client
// facade (internal/mcpclient) calls this once its outbound Initialize call
// completes and notifications/initialized has been sent, so the session can
// start accepting server-originated requests such as elicitation/create.
func (s *Session) MarkReady() {
	s.transitionReady()
}

// OnClose registers a callback invoked (once, best-effort) when the session
// reaches StateClosed — used by the session registry to remove itself.
func (s *Session) OnClose(fn func(*Session)) {
	s.mu.Lock()
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Dispatch decodes and routes one inbound frame. It never blocks on handler
// execution: requests are scheduled onto independent goroutines so a slow
// handler cannot stall other traffic on the same session (§4.4/§5).
func (s *Session) Dispatch(ctx context.Context, frame []byte) {
	msg, err := mcp.Decode(frame)
	if err != nil {
		s.handleParseError(ctx, err)
		return
	}

	switch m := msg.(type) {
	case *mcp.Request:
		s.dispatchRequest(ctx, m)
	case *mcp.Notification:
		s.dispatchNotification(ctx, m)
	case *mcp.Response:
		if err := s.pendingOutbound.Resolve(m); err != nil {
			s.logger.Warn("response for unknown request id", "session", s.id, "id", m.ID.String(), "error", err)
		}
	}
}

func (s *Session) handleParseError(ctx context.Context, err error) {
	pe, ok := err.(*mcp.ParseError)
	if !ok || pe.ID.IsZero() {
		s.logger.Warn("dropping malformed frame with no recoverable id", "session", s.id, "error", err)
		return
	}
	s.writeResponse(ctx, mcp.NewErrorResponse(pe.ID, mcp.NewError(pe.Code, err.Error())))
}

func (s *Session) dispatchRequest(ctx context.Context, req *mcp.Request) {
	state := s.State()
	if req.Method != "initialize" && state != StateReady {
		s.writeResponse(ctx, mcp.NewErrorResponse(req.ID, mcp.NewError(mcp.CodeServerNotInitialized, "server not initialized")))
		return
	}

	handler, ok := s.router.requestHandler(req.Method)
	if !ok {
		s.writeResponse(ctx, mcp.NewErrorResponse(req.ID, mcp.NewError(mcp.CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))))
		return
	}

	hctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxkey.SessionIDKey{}, s.id))
	s.trackCancel(req.ID, cancel)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.untrackCancel(req.ID)
		defer cancel()
		s.runHandler(hctx, handler, req)
	}()
}

func (s *Session) runHandler(ctx context.Context, h RequestHandler, req *mcp.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "session", s.id, "method", req.Method, "panic", r)
			s.writeResponse(context.Background(), mcp.NewErrorResponse(req.ID, mcp.NewError(mcp.CodeInternalError, "internal error")))
		}
	}()

	start := time.Now()
	result, errObj := h(ctx, s, req.Params)
	s.recordDispatch(req.Method, time.Since(start))
	if errObj != nil {
		s.writeResponse(context.Background(), mcp.NewErrorResponse(req.ID, errObj))
		return
	}
	resp, err := mcp.NewResultResponse(req.ID, result)
	if err != nil {
		s.logger.Error("failed to marshal handler result", "session", s.id, "method", req.Method, "error", err)
		resp = mcp.NewErrorResponse(req.ID, mcp.NewError(mcp.CodeInternalError, "internal error"))
	}
	s.writeResponse(context.Background(), resp)
}

func (s *Session) recordDispatch(method string, d time.Duration) {
	s.mu.RLock()
	rec := s.dispatchMetrics
	s.mu.RUnlock()
	if rec != nil {
		rec.ObserveDispatch(method, d)
	}
}

func (s *Session) dispatchNotification(ctx context.Context, n *mcp.Notification) {
	if n.Method == "notifications/cancelled" {
		s.handleCancelled(n.Params)
	}
	handler, ok := s.router.notificationHandler(n.Method)
	if !ok {
		return // silent drop, per §4.4
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification handler panicked", "session", s.id, "method", n.Method, "panic", r)
		}
	}()
	handler(ctx, s, n.Params)
}

func (s *Session) handleCancelled(params json.RawMessage) {
	var body struct {
		RequestID mcp.ID `json:"requestId"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return
	}
	if cancel, ok := s.lookupCancel(body.RequestID); ok {
		cancel()
	}
	_ = s.pendingOutbound.Cancel(body.RequestID)
}

func (s *Session) trackCancel(id mcp.ID, cancel context.CancelFunc) {
	s.cancelMu.Lock()
	s.cancels[id.Key()] = cancel
	s.cancelMu.Unlock()
}

func (s *Session) untrackCancel(id mcp.ID) {
	s.cancelMu.Lock()
	delete(s.cancels, id.Key())
	s.cancelMu.Unlock()
}

func (s *Session) lookupCancel(id mcp.ID) (context.CancelFunc, bool) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	c, ok := s.cancels[id.Key()]
	return c, ok
}

func (s *Session) writeResponse(ctx context.Context, resp *mcp.Response) {
	frame, err := mcp.Encode(resp)
	if err != nil {
		s.logger.Error("failed to encode response", "session", s.id, "error", err)
		return
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.logger.Debug("failed to write response, transport likely closing", "session", s.id, "error", err)
	}
}

// SendRequest issues a server-to-client (or client-to-server) outbound
// request over this session and blocks for the correlated response, used by
// the elicitation subsystem and by the client facade for every RPC.
func (s *Session) SendRequest(ctx context.Context, method string, params interface{}) (*mcp.Response, error) {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	id := mcp.NewStringID(uuid.NewString())
	req := &mcp.Request{ID: id, Method: method, Params: paramsRaw}

	awaiter := s.pendingOutbound.Register(id)
	frame, err := mcp.Encode(req)
	if err != nil {
		s.pendingOutbound.Forget(id)
		return nil, err
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.pendingOutbound.Forget(id)
		return nil, err
	}
	return awaiter.Wait(ctx)
}

// SendRequestWithTimeout is SendRequest bounded by an explicit deadline,
// resolving to rpc.ErrTimeout rather than blocking forever.
func (s *Session) SendRequestWithTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (*mcp.Response, error) {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	id := mcp.NewStringID(uuid.NewString())
	req := &mcp.Request{ID: id, Method: method, Params: paramsRaw}

	awaiter, stop := s.pendingOutbound.RegisterWithDeadline(id, timeout)
	defer stop()

	frame, err := mcp.Encode(req)
	if err != nil {
		s.pendingOutbound.Forget(id)
		return nil, err
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.pendingOutbound.Forget(id)
		return nil, err
	}
	return awaiter.Wait(ctx)
}

// SendRequestTracked is SendRequestWithTimeout with a caller-chosen request
// id, and propagates ctx cancellation to the peer as a
// notifications/cancelled{requestId} per §4.9/§5, rather than merely
// abandoning the awaiter locally.
func (s *Session) SendRequestTracked(ctx context.Context, id string, method string, params interface{}, timeout time.Duration) (*mcp.Response, error) {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	reqID := mcp.NewStringID(id)
	req := &mcp.Request{ID: reqID, Method: method, Params: paramsRaw}

	awaiter, stop := s.pendingOutbound.RegisterWithDeadline(reqID, timeout)
	defer stop()

	frame, err := mcp.Encode(req)
	if err != nil {
		s.pendingOutbound.Forget(reqID)
		return nil, err
	}
	if err := s.transport.Send(ctx, frame); err != nil {
		s.pendingOutbound.Forget(reqID)
		return nil, err
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.SendNotification(context.Background(), "notifications/cancelled", map[string]interface{}{"requestId": id})
			_ = s.pendingOutbound.Cancel(reqID)
		case <-watchDone:
		}
	}()

	return awaiter.Wait(context.Background())
}

// SendNotification writes a one-way notification over this session.
func (s *Session) SendNotification(ctx context.Context, method string, params interface{}) error {
	paramsRaw, err := marshalParams(params)
	if err != nil {
		return err
	}
	n := &mcp.Notification{Method: method, Params: paramsRaw}
	frame, err := mcp.Encode(n)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, frame)
}

func marshalParams(params interface{}) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	if raw, ok := params.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(params)
}

// Close transitions the session through Closing to Closed: new inbound
// frames stop being accepted, in-flight handlers are given up to grace to
// finish, then every pending-outbound awaiter is drained with
// TransportClosed and the transport is closed. This ordering resolves
// SPEC_FULL.md's graceful-shutdown-draining addition.
func (s *Session) Close(grace time.Duration) error {
	s.setState(StateClosing)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	select {
	case <-done:
	case <-time.After(grace):
	}

	s.pendingOutbound.DrainClosed()
	s.setState(StateClosed)

	err := s.transport.Close()

	s.mu.Lock()
	hooks := s.onClose
	s.onClose = nil
	s.mu.Unlock()
	for _, h := range hooks {
		h(s)
	}
	return err
}
