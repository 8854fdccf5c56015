package rpc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestResolveDeliversResponse(t *testing.T) {
	c := NewCorrelator()
	id := mcp.NewStringID("1")
	a := c.Register(id)

	resp := &mcp.Response{ID: id}
	if err := c.Resolve(resp); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	got, err := a.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !got.ID.Equal(id) {
		t.Fatalf("id mismatch")
	}
}

func TestResolveUnknownIDIsNotFatal(t *testing.T) {
	c := NewCorrelator()
	err := c.Resolve(&mcp.Response{ID: mcp.NewStringID("ghost")})
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
}

func TestDrainClosedResolvesAllPending(t *testing.T) {
	c := NewCorrelator()
	var awaiters []*Awaiter
	for i := 0; i < 5; i++ {
		awaiters = append(awaiters, c.Register(mcp.NewNumberID(int64(i))))
	}

	c.DrainClosed()

	for _, a := range awaiters {
		_, err := a.Wait(context.Background())
		if !errors.Is(err, ErrTransportClosed) {
			t.Fatalf("expected ErrTransportClosed, got %v", err)
		}
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty table after drain, got %d", c.Len())
	}
}

func TestCancelDeliversErrCancelled(t *testing.T) {
	c := NewCorrelator()
	id := mcp.NewStringID("cancel-me")
	a := c.Register(id)

	if err := c.Cancel(id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	_, err := a.Wait(context.Background())
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestRegisterWithDeadlineTimesOut(t *testing.T) {
	c := NewCorrelator()
	id := mcp.NewStringID("slow")
	a, stop := c.RegisterWithDeadline(id, 10*time.Millisecond)
	defer stop()

	_, err := a.Wait(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

// TestConcurrentRequestsCorrelateIndependently exercises §8's concurrency
// property: N parallel requests with distinct ids all resolve to their own
// response, never leaking to the wrong awaiter.
func TestConcurrentRequestsCorrelateIndependently(t *testing.T) {
	c := NewCorrelator()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := mcp.NewNumberID(int64(i))
			a := c.Register(id)
			resp, err := mcp.NewResultResponse(id, map[string]int{"v": i})
			if err != nil {
				t.Error(err)
				return
			}
			if err := c.Resolve(resp); err != nil {
				t.Error(err)
				return
			}
			got, err := a.Wait(context.Background())
			if err != nil {
				t.Error(err)
				return
			}
			if !got.ID.Equal(id) {
				t.Errorf("id leaked: want %s got %s", id.Key(), got.ID.Key())
			}
		}()
	}
	wg.Wait()
}
