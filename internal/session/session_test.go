package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTransport records every frame Send writes and lets tests synchronously
// drain them, standing in for a real stdio/SSE transport.
type fakeTransport struct {
	mu     sync.Mutex
	frames chan []byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{frames: make(chan []byte, 32)}
}

func (f *fakeTransport) Send(_ context.Context, frame []byte) error {
	f.frames <- append([]byte(nil), frame...)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) next(t *testing.T) *mcp.Response {
	t.Helper()
	select {
	case raw := <-f.frames:
		msg, err := mcp.Decode(raw)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		resp, ok := msg.(*mcp.Response)
		if !ok {
			t.Fatalf("expected response frame, got %T", msg)
		}
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

type fakeNegotiator struct{}

func (fakeNegotiator) ServerInfo() PeerInfo       { return PeerInfo{Name: "mcpcore-test", Version: "0.0.0"} }
func (fakeNegotiator) Capabilities() Capabilities { return Capabilities{"tools": json.RawMessage(`{}`)} }
func (fakeNegotiator) Instructions() string       { return "" }

func newTestSession() (*Session, *fakeTransport, *Router) {
	router := NewRouter(fakeNegotiator{})
	tr := newFakeTransport()
	sess := New("", tr, router, Capabilities{"tools": json.RawMessage(`{}`)}, nil)
	return sess, tr, router
}

func initRequest(version string) []byte {
	req := &mcp.Request{
		ID:     mcp.NewStringID("1"),
		Method: "initialize",
		Params: json.RawMessage(`{"protocolVersion":"` + version + `","clientInfo":{"name":"tester","version":"1.0"},"capabilities":{}}`),
	}
	raw, _ := mcp.Encode(req)
	return raw
}

func TestInitializeHandshakeTransitionsToReady(t *testing.T) {
	sess, tr, _ := newTestSession()
	ctx := context.Background()

	sess.Dispatch(ctx, initRequest("2025-06-18"))
	resp := tr.next(t)
	if resp.IsError() {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	if sess.State() != StateInitializing {
		t.Fatalf("expected Initializing after initialize, got %s", sess.State())
	}

	notif, _ := mcp.Encode(&mcp.Notification{Method: "notifications/initialized"})
	sess.Dispatch(ctx, notif)

	deadline := time.After(time.Second)
	for sess.State() != StateReady {
		select {
		case <-deadline:
			t.Fatalf("session never reached Ready, stuck at %s", sess.State())
		default:
		}
	}
}

func TestRequestsRejectedBeforeReady(t *testing.T) {
	sess, tr, router := newTestSession()
	router.Handle("tools/list", func(ctx context.Context, sess *Session, params json.RawMessage) (interface{}, *mcp.ErrorObject) {
		return map[string]interface{}{"tools": []interface{}{}}, nil
	})

	req := &mcp.Request{ID: mcp.NewNumberID(1), Method: "tools/list"}
	raw, _ := mcp.Encode(req)
	sess.Dispatch(context.Background(), raw)

	resp := tr.next(t)
	if !resp.IsError() || resp.Error.Code != mcp.CodeServerNotInitialized {
		t.Fatalf("expected -32002, got %+v", resp.Error)
	}
}

func TestPingAnsweredOnceReady(t *testing.T) {
	sess, tr, _ := newTestSession()
	ctx := context.Background()

	sess.Dispatch(ctx, initRequest("2025-06-18"))
	tr.next(t)
	notif, _ := mcp.Encode(&mcp.Notification{Method: "notifications/initialized"})
	sess.Dispatch(ctx, notif)
	for sess.State() != StateReady {
		time.Sleep(time.Millisecond)
	}

	req := &mcp.Request{ID: mcp.NewNumberID(7), Method: "ping"}
	raw, _ := mcp.Encode(req)
	sess.Dispatch(ctx, raw)

	resp := tr.next(t)
	if resp.IsError() {
		t.Fatalf("ping failed: %+v", resp.Error)
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	sess, tr, _ := newTestSession()
	ctx := context.Background()
	sess.Dispatch(ctx, initRequest("2025-06-18"))
	tr.next(t)
	notif, _ := mcp.Encode(&mcp.Notification{Method: "notifications/initialized"})
	sess.Dispatch(ctx, notif)
	for sess.State() != StateReady {
		time.Sleep(time.Millisecond)
	}

	req := &mcp.Request{ID: mcp.NewStringID("x"), Method: "bogus/method"}
	raw, _ := mcp.Encode(req)
	sess.Dispatch(ctx, raw)

	resp := tr.next(t)
	if !resp.IsError() || resp.Error.Code != mcp.CodeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestCloseDrainsPendingOutbound(t *testing.T) {
	sess, _, _ := newTestSession()

	id := mcp.NewStringID("outstanding")
	awaiter := sess.pendingOutbound.Register(id)

	done := make(chan struct{})
	go func() {
		sess.Close(10 * time.Millisecond)
		close(done)
	}()

	_, err := awaiter.Wait(context.Background())
	if err == nil {
		t.Fatal("expected the outstanding awaiter to resolve with an error on close")
	}
	<-done
	if sess.State() != StateClosed {
		t.Fatalf("expected Closed, got %s", sess.State())
	}
}

func TestNegotiateVersionPicksHighestCompatible(t *testing.T) {
	got, ok := NegotiateVersion(SupportedProtocolVersions, "2025-06-18")
	if !ok || got != "2025-06-18" {
		t.Fatalf("want 2025-06-18, got %q ok=%v", got, ok)
	}

	got, ok = NegotiateVersion(SupportedProtocolVersions, "2025-01-01")
	if !ok || got != "2024-11-05" {
		t.Fatalf("want fallback to 2024-11-05, got %q ok=%v", got, ok)
	}

	_, ok = NegotiateVersion(SupportedProtocolVersions, "2020-01-01")
	if ok {
		t.Fatal("expected no compatible version for an ancient client offer")
	}
}
