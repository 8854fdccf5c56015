package mcpclient

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Catalog is the PromptResourceCatalog collaborator of §4.8: it caches the
// prompts/resources listings, drops the cached listing on a
// *_list_changed notification and refreshes lazily on the next read, and
// single-flights concurrent refreshes so readers racing a cache miss share
// one RPC instead of stampeding the server.
//
// Grounded on the teacher's internal/domain/upstream/tool_cache.go (a
// mutex-guarded, replace-the-whole-slice cache keyed by upstream) and
// internal/oauthclient/manager.go's singleflight-per-key refresh pattern;
// adapted here to a single-session, two-listing (prompts, resources) shape
// rather than the teacher's multi-upstream tool aggregation.
type Catalog struct {
	client *Client

	mu        sync.RWMutex
	prompts   []Prompt
	promptsOK bool
	resources []Resource
	resourcesOK bool

	flight singleflight.Group
}

func newCatalog(c *Client) *Catalog {
	return &Catalog{client: c}
}

// Catalog returns the client's PromptResourceCatalog.
func (c *Client) Catalog() *Catalog { return c.catalog }

// Prompts returns the cached prompt listing, refreshing it first if no
// listing has been fetched yet or a list_changed notification invalidated
// it since the last refresh.
func (cat *Catalog) Prompts(ctx context.Context) ([]Prompt, error) {
	cat.mu.RLock()
	if cat.promptsOK {
		out := append([]Prompt(nil), cat.prompts...)
		cat.mu.RUnlock()
		return out, nil
	}
	cat.mu.RUnlock()

	v, err, _ := cat.flight.Do("prompts", func() (interface{}, error) {
		return cat.client.ListPrompts(ctx)
	})
	if err != nil {
		return nil, err
	}
	prompts := v.([]Prompt)

	cat.mu.Lock()
	cat.prompts = prompts
	cat.promptsOK = true
	cat.mu.Unlock()

	return append([]Prompt(nil), prompts...), nil
}

// Resources returns the cached resource listing, refreshing as Prompts does.
func (cat *Catalog) Resources(ctx context.Context) ([]Resource, error) {
	cat.mu.RLock()
	if cat.resourcesOK {
		out := append([]Resource(nil), cat.resources...)
		cat.mu.RUnlock()
		return out, nil
	}
	cat.mu.RUnlock()

	v, err, _ := cat.flight.Do("resources", func() (interface{}, error) {
		return cat.client.ListResources(ctx)
	})
	if err != nil {
		return nil, err
	}
	resources := v.([]Resource)

	cat.mu.Lock()
	cat.resources = resources
	cat.resourcesOK = true
	cat.mu.Unlock()

	return append([]Resource(nil), resources...), nil
}

func (cat *Catalog) invalidatePrompts() {
	cat.mu.Lock()
	cat.promptsOK = false
	cat.prompts = nil
	cat.mu.Unlock()
}

func (cat *Catalog) invalidateResources() {
	cat.mu.Lock()
	cat.resourcesOK = false
	cat.resources = nil
	cat.mu.Unlock()
}
