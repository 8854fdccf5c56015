// Package sse implements the HTTP+SSE transport (§4.3): a long-lived
// text/event-stream carries server-to-client frames, while discrete POSTs
// carry client-to-server frames. The two legs are tied together by an
// "endpoint" handshake event emitted as soon as the stream opens, echoing
// the session id the client must attach to every POST.
package sse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpcore/mcpcore/internal/session"
)

const (
	maxPostBodySize = 4 << 20
	keepAliveEvery  = 25 * time.Second
)

// SessionFactory builds a new *session.Session bound to the transport handed
// to it, wiring in the shared router and server capabilities. The server
// package supplies this so the transport stays free of a dependency on
// however tools/prompts/resources get registered.
type SessionFactory func(id string, t session.Transport) *session.Session

// Server is the http.Handler implementing the two-leg SSE transport. One
// Server instance can host arbitrarily many concurrent sessions.
type Server struct {
	registry   *session.Registry
	newSession SessionFactory
	basePath   string
	logger     *slog.Logger
}

// NewServer builds an SSE transport server. basePath is the mount point the
// endpoint handshake event's POST URL is rooted at (e.g. "/message").
func NewServer(registry *session.Registry, factory SessionFactory, basePath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if basePath == "" {
		basePath = "/message"
	}
	return &Server{registry: registry, newSession: factory, basePath: basePath, logger: logger}
}

// ServeSSE handles the GET that opens the long-lived event stream.
func (s *Server) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	tr := newTransport()
	sess := s.newSession(id, tr)
	s.registry.Put(sess)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	endpoint := fmt.Sprintf("%s?sessionId=%s", s.basePath, url.QueryEscape(id))
	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", endpoint); err != nil {
		tr.closeLocal()
		return
	}
	flusher.Flush()

	ctx := r.Context()
	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = sess.Close(2 * time.Second)
			return
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keep-alive\n\n"); err != nil {
				_ = sess.Close(2 * time.Second)
				return
			}
			flusher.Flush()
		case frame, ok := <-tr.outbound:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame); err != nil {
				_ = sess.Close(2 * time.Second)
				return
			}
			flusher.Flush()
		}
	}
}

// ServePost handles a client-to-server frame delivered as an HTTP POST body.
// The session id travels as a query parameter, set from the endpoint event
// the client received on its SSE stream.
func (s *Server) ServePost(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		http.Error(w, "sessionId query parameter required", http.StatusBadRequest)
		return
	}

	sess, err := s.registry.MustGet(id)
	if err != nil {
		// §4.3: "POSTs arriving after closure return 404" — applies equally
		// to a session id that never existed, so a closed session cannot be
		// distinguished from one that was never valid.
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPostBodySize)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	sess.Dispatch(r.Context(), body)
	w.WriteHeader(http.StatusAccepted)
}

// transport is the per-session session.Transport implementation: Send
// enqueues the frame for the SSE event loop to write, Close ends the stream.
type transport struct {
	mu       sync.Mutex
	outbound chan []byte
	closed   bool
}

func newTransport() *transport {
	return &transport{outbound: make(chan []byte, 64)}
}

func (t *transport) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("sse: transport closed")
	}
	select {
	case t.outbound <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.outbound)
	return nil
}

func (t *transport) closeLocal() {
	_ = t.Close()
}

var _ session.Transport = (*transport)(nil)
