package sse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

type fakeNegotiator struct{}

func (fakeNegotiator) ServerInfo() session.PeerInfo       { return session.PeerInfo{Name: "mcpcore-test"} }
func (fakeNegotiator) Capabilities() session.Capabilities { return session.Capabilities{} }
func (fakeNegotiator) Instructions() string               { return "" }

func newTestServer(t *testing.T) (*httptest.Server, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry()
	router := session.NewRouter(fakeNegotiator{})
	factory := func(id string, tr session.Transport) *session.Session {
		return session.New(id, tr, router, session.Capabilities{}, nil)
	}
	srv := NewServer(registry, factory, "/message", nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, registry
}

// readEvent reads one "event: x\ndata: y\n\n" or "data: y\n\n" block from an
// SSE stream and returns its data payload.
func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading SSE stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "":
			if data != "" {
				return data
			}
		case strings.HasPrefix(line, ":"):
			continue // comment/keep-alive
		}
	}
}

func TestEndpointHandshakeAndRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/sse", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /sse: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	endpoint := readEvent(t, reader)
	if !strings.HasPrefix(endpoint, "/message?sessionId=") {
		t.Fatalf("unexpected endpoint event: %q", endpoint)
	}

	initReq := &mcp.Request{
		ID:     mcp.NewStringID("1"),
		Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"2025-06-18","clientInfo":{"name":"t","version":"1"},"capabilities":{}}`),
	}
	raw, _ := mcp.Encode(initReq)

	postResp, err := http.Post(ts.URL+endpoint, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", postResp.StatusCode)
	}

	data := readEvent(t, reader)
	msg, err := mcp.Decode([]byte(data))
	if err != nil {
		t.Fatalf("decode streamed frame: %v", err)
	}
	respMsg, ok := msg.(*mcp.Response)
	if !ok {
		t.Fatalf("expected response frame, got %T", msg)
	}
	if respMsg.IsError() {
		t.Fatalf("initialize failed: %+v", respMsg.Error)
	}
}

func TestPostToUnknownSessionIsNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/message?sessionId=does-not-exist", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
