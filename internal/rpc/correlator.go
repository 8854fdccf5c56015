// Package rpc implements the pending-request correlator shared by both peers
// of an MCP session: whichever side originates a request (server issuing
// elicitation/create, client issuing tools/call, ...) parks an Awaiter here
// keyed by request ID and resolves it when the matching Response arrives, the
// transport closes, a deadline expires, or a notifications/cancelled fires.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcpcore/mcpcore/pkg/mcp"
)

// Distinct, recoverable outcomes an Awaiter can resolve with. These are
// errors rather than ordinary results because every caller path (session
// dispatch, elicitation, client facade) treats "no response" as one of a
// closed set of failure kinds, never a panic-worthy condition.
var (
	// ErrTransportClosed is delivered to every pending awaiter when the
	// owning session's transport closes or the session transitions to Closed.
	ErrTransportClosed = errors.New("rpc: transport closed")
	// ErrTimeout is delivered when an awaiter's deadline elapses first.
	ErrTimeout = errors.New("rpc: request timed out")
	// ErrCancelled is delivered when a notifications/cancelled referencing
	// this request id arrives, or the caller's context is cancelled.
	ErrCancelled = errors.New("rpc: request cancelled")
	// ErrAlreadyResolved is returned by Resolve/Cancel when the awaiter for
	// the id was already removed (late or duplicate response).
	ErrAlreadyResolved = errors.New("rpc: no pending request for id")
)

// Outcome is what an Awaiter resolves to: either a Response or one of the
// sentinel errors above.
type Outcome struct {
	Response *mcp.Response
	Err      error
}

// Awaiter is the suspension point returned by Correlator.Register. Callers
// block on Wait (or select on Done) until the outcome is available.
type Awaiter struct {
	id   mcp.ID
	done chan Outcome
	once sync.Once
}

// Done returns a channel that receives exactly one Outcome.
func (a *Awaiter) Done() <-chan Outcome { return a.done }

// Wait blocks until the outcome is available or ctx is cancelled, whichever
// comes first. A context cancellation does not remove the awaiter from the
// correlator table; callers that give up early should call Correlator.Cancel.
func (a *Awaiter) Wait(ctx context.Context) (*mcp.Response, error) {
	select {
	case o := <-a.done:
		return o.Response, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Awaiter) resolve(o Outcome) {
	a.once.Do(func() {
		a.done <- o
		close(a.done)
	})
}

// Correlator is a thread-safe map of outstanding request IDs to Awaiters.
// One Correlator exists per peer-side of a session (the server's outbound
// table for elicitation, the client's outbound table for every RPC it
// issues).
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*Awaiter
	clock   func() time.Time
}

// NewCorrelator creates an empty correlator.
func NewCorrelator() *Correlator {
	return &Correlator{
		pending: make(map[string]*Awaiter),
		clock:   time.Now,
	}
}

// Register allocates bookkeeping for a newly sent request and returns the
// Awaiter the caller should block on. It must be called before the request
// bytes are written, to avoid a race where the response arrives before the
// awaiter is registered.
func (c *Correlator) Register(id mcp.ID) *Awaiter {
	a := &Awaiter{id: id, done: make(chan Outcome, 1)}
	c.mu.Lock()
	c.pending[id.Key()] = a
	c.mu.Unlock()
	return a
}

// RegisterWithDeadline is Register plus an automatic Timeout resolution if
// no response/cancellation arrives before d elapses. The returned stop func
// should be deferred to release the timer when the awaiter resolves first.
func (c *Correlator) RegisterWithDeadline(id mcp.ID, d time.Duration) (*Awaiter, func()) {
	a := c.Register(id)
	timer := time.AfterFunc(d, func() {
		c.resolveAndRemove(id, Outcome{Err: ErrTimeout})
	})
	return a, func() { timer.Stop() }
}

// Resolve delivers a successful or error Response to the awaiter registered
// for resp.ID. Returns ErrAlreadyResolved if no matching awaiter is pending
// (a late, duplicate, or unsolicited response) — logged by the caller at
// warning level per §4.4, never treated as fatal.
func (c *Correlator) Resolve(resp *mcp.Response) error {
	return c.resolveAndRemove(resp.ID, Outcome{Response: resp})
}

// Cancel resolves the awaiter for id with ErrCancelled, mirroring an inbound
// notifications/cancelled{requestId}.
func (c *Correlator) Cancel(id mcp.ID) error {
	return c.resolveAndRemove(id, Outcome{Err: ErrCancelled})
}

// Forget removes the awaiter for id without resolving it. Used when a caller
// gives up waiting (context cancelled) but the response may still arrive
// later and should be silently dropped rather than delivered to no one.
func (c *Correlator) Forget(id mcp.ID) {
	c.mu.Lock()
	delete(c.pending, id.Key())
	c.mu.Unlock()
}

// DrainClosed resolves every pending awaiter with ErrTransportClosed and
// empties the table. Called once when a session transitions to Closed.
func (c *Correlator) DrainClosed() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*Awaiter)
	c.mu.Unlock()

	for _, a := range pending {
		a.resolve(Outcome{Err: ErrTransportClosed})
	}
}

// Len reports the number of outstanding requests, for metrics.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) resolveAndRemove(id mcp.ID, o Outcome) error {
	c.mu.Lock()
	a, ok := c.pending[id.Key()]
	if ok {
		delete(c.pending, id.Key())
	}
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: id=%s", ErrAlreadyResolved, id.String())
	}
	a.resolve(o)
	return nil
}
