package elicitation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/internal/ctxkey"
	"github.com/mcpcore/mcpcore/internal/session"
	"github.com/mcpcore/mcpcore/pkg/mcp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type loopbackTransport struct {
	inbound chan []byte
}

func (t *loopbackTransport) Send(_ context.Context, frame []byte) error {
	t.inbound <- frame
	return nil
}
func (t *loopbackTransport) Close() error { return nil }

type fakeNegotiator struct{}

func (fakeNegotiator) ServerInfo() session.PeerInfo       { return session.PeerInfo{} }
func (fakeNegotiator) Capabilities() session.Capabilities { return session.Capabilities{} }
func (fakeNegotiator) Instructions() string               { return "" }

func newHarness() (*session.Registry, *session.Session, chan []byte) {
	registry := session.NewRegistry()
	router := session.NewRouter(fakeNegotiator{})
	tr := &loopbackTransport{inbound: make(chan []byte, 8)}
	sess := session.New("sess-1", tr, router, session.Capabilities{}, nil)
	registry.Put(sess)
	return registry, sess, tr.inbound
}

func schemaRequiringAlias() Schema {
	return Schema{
		Type: "object",
		Properties: map[string]Property{
			"alias": {Type: "string"},
		},
		Required: []string{"alias"},
	}
}

func TestCreateRoundTripAccept(t *testing.T) {
	registry, _, outbound := newHarness()
	svc := New(registry, time.Second)

	ctx := context.WithValue(context.Background(), ctxkey.SessionIDKey{}, "sess-1")

	done := make(chan struct{})
	var result Result
	var callErr error
	go func() {
		result, callErr = svc.Create(ctx, "Provide alias", schemaRequiringAlias())
		close(done)
	}()

	frame := <-outbound
	msg, err := mcp.Decode(frame)
	if err != nil {
		t.Fatalf("decode outbound elicitation request: %v", err)
	}
	req, ok := msg.(*mcp.Request)
	if !ok || req.Method != "elicitation/create" {
		t.Fatalf("expected elicitation/create request, got %+v", msg)
	}

	resp := &mcp.Response{
		ID:     req.ID,
		Result: json.RawMessage(`{"action":"accept","content":{"alias":"Voyager"}}`),
	}
	sessForReply, _ := registry.Get("sess-1")
	respFrame, _ := mcp.Encode(resp)
	sessForReply.Dispatch(context.Background(), respFrame)

	<-done
	if callErr != nil {
		t.Fatalf("Create: %v", callErr)
	}
	if result.Action != "accept" || result.Content["alias"] != "Voyager" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestCreateRejectsContentFailingSchema(t *testing.T) {
	registry, _, outbound := newHarness()
	svc := New(registry, time.Second)
	ctx := context.WithValue(context.Background(), ctxkey.SessionIDKey{}, "sess-1")

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = svc.Create(ctx, "Provide alias", schemaRequiringAlias())
		close(done)
	}()

	frame := <-outbound
	msg, _ := mcp.Decode(frame)
	req := msg.(*mcp.Request)

	resp := &mcp.Response{ID: req.ID, Result: json.RawMessage(`{"action":"accept","content":{}}`)}
	sess, _ := registry.Get("sess-1")
	respFrame, _ := mcp.Encode(resp)
	sess.Dispatch(context.Background(), respFrame)

	<-done
	if callErr == nil {
		t.Fatal("expected schema validation failure for missing required field")
	}
}

func TestCreateTimesOut(t *testing.T) {
	registry, _, _ := newHarness()
	svc := New(registry, 10*time.Millisecond)
	ctx := context.WithValue(context.Background(), ctxkey.SessionIDKey{}, "sess-1")

	_, err := svc.Create(ctx, "Provide alias", schemaRequiringAlias())
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestCreateCancelledContextPropagatesNotification(t *testing.T) {
	registry, _, outbound := newHarness()
	svc := New(registry, time.Minute)
	ctx, cancel := context.WithCancel(context.WithValue(context.Background(), ctxkey.SessionIDKey{}, "sess-1"))

	done := make(chan struct{})
	var callErr error
	go func() {
		_, callErr = svc.Create(ctx, "Provide alias", schemaRequiringAlias())
		close(done)
	}()

	<-outbound // the elicitation/create request itself
	cancel()

	cancelFrame := <-outbound
	msg, _ := mcp.Decode(cancelFrame)
	n, ok := msg.(*mcp.Notification)
	if !ok || n.Method != "notifications/cancelled" {
		t.Fatalf("expected notifications/cancelled, got %+v", msg)
	}

	<-done
	if callErr != ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", callErr)
	}
}
