package mcpserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// maxCompletionCacheEntries bounds the completion result cache so a stream
// of distinct partial-value queries can't grow it without limit; once full,
// new entries are skipped rather than evicting (completion results are
// cheap to recompute, unlike the teacher's policy decisions).
const maxCompletionCacheEntries = 4096

// completionCacheTTL bounds how long a cached completion result is served
// before the handler is asked again, since the underlying data (e.g.
// matching resource URIs) can change between requests.
const completionCacheTTL = 30 * time.Second

type completionCacheEntry struct {
	result  CompletionResult
	expires time.Time
}

// completionCache memoizes completion/complete results keyed by a fingerprint
// of (ref, argument name, partial value, context), mirroring the teacher's
// computeCacheKey (internal/service/policy_service.go) for policy
// evaluation: same inputs, same xxhash-keyed lookup before recomputation.
// The completion context is part of the key because two requests that
// differ only in context (e.g. a different already-filled sibling argument)
// can legitimately yield different suggestions.
type completionCache struct {
	mu      sync.Mutex
	entries map[uint64]completionCacheEntry
}

func newCompletionCache() *completionCache {
	return &completionCache{entries: make(map[uint64]completionCacheEntry)}
}

func completionCacheKey(ref CompletionRef, arg CompletionArgument, completionCtx json.RawMessage) uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(ref.key())
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(arg.Name)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(arg.Value)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(completionCtx)
	return h.Sum64()
}

func (c *completionCache) get(ref CompletionRef, arg CompletionArgument, completionCtx json.RawMessage) (CompletionResult, bool) {
	key := completionCacheKey(ref, arg, completionCtx)
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return CompletionResult{}, false
	}
	return entry.result, true
}

func (c *completionCache) put(ref CompletionRef, arg CompletionArgument, completionCtx json.RawMessage, result CompletionResult) {
	key := completionCacheKey(ref, arg, completionCtx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= maxCompletionCacheEntries {
		return
	}
	c.entries[key] = completionCacheEntry{result: result, expires: time.Now().Add(completionCacheTTL)}
}
