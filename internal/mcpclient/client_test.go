package mcpclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/internal/mcpserver"
	"github.com/mcpcore/mcpcore/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// linkedTransport wires a Client's session directly to a server-side
// session.Session in memory, standing in for a real stdio pipe or SSE
// round-trip so these tests exercise the whole client facade -> wire codec
// -> server dispatch path without a subprocess or HTTP server.
type linkedTransport struct {
	peer func(ctx context.Context, frame []byte)
}

func (t *linkedTransport) Send(ctx context.Context, frame []byte) error {
	go t.peer(ctx, frame)
	return nil
}

func (t *linkedTransport) Close() error { return nil }

func newLinkedPair(t *testing.T) (*Client, *session.Session) {
	t.Helper()

	registry := session.NewRegistry()
	srv := mcpserver.New(session.PeerInfo{Name: "test-server", Version: "1.0.0"}, "", registry)
	srv.Tools.Register(mcpserver.Tool{
		Name: "add",
		Params: []mcpserver.ParamSpec{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
		},
		Handler: func(ctx context.Context, args json.RawMessage) (mcpserver.ToolResult, error) {
			var in struct{ A, B float64 }
			_ = json.Unmarshal(args, &in)
			return mcpserver.TextResult("sum computed"), nil
		},
	}, false)

	router := session.NewRouter(srv)
	srv.Wire(router)

	var serverSess *session.Session
	clientTransport := &linkedTransport{}
	serverTransport := &linkedTransport{}

	client := New(session.PeerInfo{Name: "test-client", Version: "1.0.0"}, clientTransport, 2*time.Second)
	serverSess = session.New("srv-1", serverTransport, router, srv.Capabilities(), nil)
	registry.Put(serverSess)

	clientTransport.peer = func(ctx context.Context, frame []byte) { serverSess.Dispatch(ctx, frame) }
	serverTransport.peer = func(ctx context.Context, frame []byte) { client.Session().Dispatch(ctx, frame) }

	return client, serverSess
}

func TestClientInitializeHandshake(t *testing.T) {
	client, srv := newLinkedPair(t)
	ctx := context.Background()

	result, err := client.Initialize(ctx, session.Capabilities{})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.ServerInfo.Name != "test-server" {
		t.Fatalf("unexpected server info: %+v", result.ServerInfo)
	}

	deadline := time.After(time.Second)
	for srv.State() != session.StateReady {
		select {
		case <-deadline:
			t.Fatalf("server session never reached Ready, stuck at %s", srv.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func TestClientCallToolEndToEnd(t *testing.T) {
	client, _ := newLinkedPair(t)
	ctx := context.Background()

	if _, err := client.Initialize(ctx, session.Capabilities{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	result, err := client.CallTool(ctx, "add", map[string]interface{}{"a": 5, "b": 7})
	if err != nil {
		t.Fatalf("call tool: %v", err)
	}
	if result.IsError || len(result.Content) == 0 || result.Content[0].Text != "sum computed" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestClientElicitationDefaultDecline(t *testing.T) {
	client, srv := newLinkedPair(t)
	ctx := context.Background()
	if _, err := client.Initialize(ctx, session.Capabilities{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	resp, err := srv.SendRequestWithTimeout(ctx, "elicitation/create", map[string]interface{}{
		"message":         "Provide alias",
		"requestedSchema": map[string]interface{}{"type": "object"},
	}, time.Second)
	if err != nil {
		t.Fatalf("elicitation round trip: %v", err)
	}
	var body struct {
		Action string `json:"action"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.Action != "decline" {
		t.Fatalf("expected default decline, got %q", body.Action)
	}
}

func TestClientElicitationAcceptRoundTrip(t *testing.T) {
	client, srv := newLinkedPair(t)
	ctx := context.Background()
	if _, err := client.Initialize(ctx, session.Capabilities{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	client.SetElicitationHandler(func(ctx context.Context, message string, schema json.RawMessage) (string, map[string]interface{}) {
		if message != "Provide alias" {
			t.Errorf("unexpected message: %q", message)
		}
		return "accept", map[string]interface{}{"alias": "Voyager"}
	})

	resp, err := srv.SendRequestWithTimeout(ctx, "elicitation/create", map[string]interface{}{
		"message":         "Provide alias",
		"requestedSchema": map[string]interface{}{"type": "object", "properties": map[string]interface{}{"alias": map[string]interface{}{"type": "string"}}},
	}, time.Second)
	if err != nil {
		t.Fatalf("elicitation round trip: %v", err)
	}

	var body struct {
		Action  string                 `json:"action"`
		Content map[string]interface{} `json:"content"`
	}
	if err := json.Unmarshal(resp.Result, &body); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if body.Action != "accept" || body.Content["alias"] != "Voyager" {
		t.Fatalf("unexpected elicitation result: %+v", body)
	}
}
