package mcpclient

import "sync"

// eventBus carries the client's broadcast events: OnError and OnClose, plus
// the two catalog invalidation events (PromptsUpdated/ResourcesUpdated) the
// PromptResourceCatalog collaborator re-emits to subscribers. It has no
// per-response or per-notification event. Each emit copies the subscriber
// list under the mutex and calls the copies outside it, so a concurrent
// subscribe never races an emit.
type eventBus struct {
	mu             sync.Mutex
	onError        []func(error)
	onClose        []func()
	onPromptsUpd   []func()
	onResourcesUpd []func()
}

// OnError subscribes fn to errors from sending an RPC or waiting for its
// response (transport failure, timeout, cancellation). JSON-RPC error
// responses and malformed results are returned to the caller only.
func (b *eventBus) OnError(fn func(error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = append(b.onError, fn)
}

// OnClose subscribes fn to the underlying session's closure.
func (b *eventBus) OnClose(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = append(b.onClose, fn)
}

// OnPromptsUpdated subscribes fn to prompts/list_changed notifications.
func (b *eventBus) OnPromptsUpdated(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPromptsUpd = append(b.onPromptsUpd, fn)
}

// OnResourcesUpdated subscribes fn to resources/list_changed notifications.
func (b *eventBus) OnResourcesUpdated(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onResourcesUpd = append(b.onResourcesUpd, fn)
}

func (b *eventBus) emitError(err error) {
	b.mu.Lock()
	var fns []func(error)
	fns = append(fns, b.onError...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

func (b *eventBus) emitClose() {
	b.mu.Lock()
	var fns []func()
	fns = append(fns, b.onClose...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *eventBus) emitPromptsUpdated() {
	b.mu.Lock()
	var fns []func()
	fns = append(fns, b.onPromptsUpd...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *eventBus) emitResourcesUpdated() {
	b.mu.Lock()
	var fns []func()
	fns = append(fns, b.onResourcesUpd...)
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
