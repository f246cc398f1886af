// Package runtime hosts the in-process plumbing of the embedded backend:
// live-insert fanout and supervised background workers.
package runtime

import (
	"sync"

	"rental-chat/contract"
	"rental-chat/domain"
)

type handlerSet map[uint64]contract.InsertHandler

// Registry fans newly inserted messages out to in-process subscribers,
// keyed by conversation. It is the embedded counterpart of a hosted
// real-time channel: Subscribe hands out a releasable handle, Publish
// delivers to every live handle of the message's conversation.
type Registry struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]handlerSet
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]handlerSet)}
}

// Subscribe registers a handler for one conversation key and returns its
// handle. Releasing the handle is idempotent.
func (r *Registry) Subscribe(key domain.ConversationKey, fn contract.InsertHandler) contract.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	k := key.String()
	if _, ok := r.subs[k]; !ok {
		r.subs[k] = make(handlerSet)
	}
	r.subs[k][id] = fn

	return &liveHandle{registry: r, key: k, id: id}
}

// Publish delivers a message to every subscriber of its conversation.
// Handlers run outside the registry lock.
func (r *Registry) Publish(m domain.Message) {
	r.mu.RLock()
	var handlers []contract.InsertHandler
	for _, fn := range r.subs[m.Key.String()] {
		handlers = append(handlers, fn)
	}
	r.mu.RUnlock()

	for _, fn := range handlers {
		fn(m)
	}
}

// ActiveSubscriptions reports how many live handles exist for a key.
func (r *Registry) ActiveSubscriptions(key domain.ConversationKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key.String()])
}

func (r *Registry) release(key string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if handlers, ok := r.subs[key]; ok {
		delete(handlers, id)
		// No empty sets left behind across repeated open/close cycles.
		if len(handlers) == 0 {
			delete(r.subs, key)
		}
	}
}

type liveHandle struct {
	once     sync.Once
	registry *Registry
	key      string
	id       uint64
}

func (h *liveHandle) Release() error {
	h.once.Do(func() {
		h.registry.release(h.key, h.id)
	})
	return nil
}
