package session

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the process-wide map of live session id to *Session. The HTTP
// SSE transport consults it to route an inbound POST to the SSE stream that
// established the same session (§4.3); the stdio transport, which has
// exactly one implicit session per process, may ignore it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Put adds sess to the registry and arranges for it to remove itself once
// closed.
func (r *Registry) Put(sess *Session) {
	r.mu.Lock()
	r.sessions[sess.ID()] = sess
	r.mu.Unlock()

	sess.OnClose(func(s *Session) {
		r.mu.Lock()
		delete(r.sessions, s.ID())
		r.mu.Unlock()
	})
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// MustGet looks up a session by id, returning an error that identifies the
// missing id rather than a bare bool for callers that want to propagate it
// as a 404/invalid-session response.
func (r *Registry) MustGet(id string) (*Session, error) {
	s, ok := r.Get(id)
	if !ok {
		return nil, fmt.Errorf("session: no session registered for id %q", id)
	}
	return s, nil
}

// Remove evicts a session explicitly, e.g. after an abrupt transport error
// that won't go through Session.Close.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len reports the number of live sessions, for metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// PendingOutboundLen sums every live session's outstanding outbound request
// count, for internal/metrics' PendingRequests gauge: there is no single
// process-wide correlator to sample since each session owns its own.
func (r *Registry) PendingOutboundLen() int {
	total := 0
	r.Range(func(s *Session) {
		total += s.PendingOutboundLen()
	})
	return total
}

// Range calls fn for every live session. fn must not call back into Put or
// Remove on the same registry.
func (r *Registry) Range(fn func(*Session)) {
	r.mu.RLock()
	snapshot := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		snapshot = append(snapshot, s)
	}
	r.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// CloseAll closes every live session with the given per-session grace
// period, used during process shutdown. Sessions are closed concurrently so
// one slow drain does not delay the others.
func (r *Registry) CloseAll(grace time.Duration) {
	var wg sync.WaitGroup
	r.Range(func(s *Session) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Close(grace)
		}()
	})
	wg.Wait()
}
