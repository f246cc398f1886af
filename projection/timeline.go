// Package projection builds local timelines from observed messages.
// Handles ordering, deduplication, and read-state tracking.
// Does not talk to any transport or storage directly.
package projection

import (
	"sort"
	"sync"

	"rental-chat/domain"
	"rental-chat/domain/event"
)

// Timeline is the ordered, deduplicated view of one conversation.
//
// Insert is commutative and idempotent: applying the same messages in any
// order, with duplicates, converges to the same ordered list. This is what
// lets the history fetch and the live subscription feed the same timeline
// without coordinating.
//
// Timeline is safe for concurrent use.
type Timeline struct {
	mu        sync.Mutex
	key       domain.ConversationKey
	messages  []domain.Message
	seen      map[string]struct{}
	observers []func(event.TimelineEvent)
}

func NewTimeline(key domain.ConversationKey) *Timeline {
	return &Timeline{
		key:  key,
		seen: make(map[string]struct{}),
	}
}

func (t *Timeline) Conversation() domain.ConversationKey {
	return t.key
}

// Watch registers an observer invoked after every state change.
// Observers are called outside the timeline lock, in registration order.
func (t *Timeline) Watch(fn func(event.TimelineEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, fn)
}

// Insert adds a message keeping ascending (CreatedAt, ID) order.
// A message whose id is already present is ignored. Returns whether the
// timeline changed.
func (t *Timeline) Insert(m domain.Message) bool {
	t.mu.Lock()
	if _, ok := t.seen[m.ID]; ok {
		t.mu.Unlock()
		return false
	}
	t.seen[m.ID] = struct{}{}

	pos := sort.Search(len(t.messages), func(i int) bool {
		return m.Less(t.messages[i])
	})
	t.messages = append(t.messages, domain.Message{})
	copy(t.messages[pos+1:], t.messages[pos:])
	t.messages[pos] = m
	t.mu.Unlock()

	t.notify(event.MessageArrived{Message: m})
	return true
}

// MarkRead flips the read flag to true on the given ids. Unknown ids are
// ignored and the flag never goes back to false. Returns the ids that
// actually changed.
func (t *Timeline) MarkRead(ids ...string) []string {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	t.mu.Lock()
	var changed []string
	for i := range t.messages {
		if _, ok := wanted[t.messages[i].ID]; !ok {
			continue
		}
		if t.messages[i].Read {
			continue
		}
		t.messages[i].Read = true
		changed = append(changed, t.messages[i].ID)
	}
	t.mu.Unlock()

	if len(changed) > 0 {
		t.notify(event.MessagesMarkedRead{Conversation: t.key, IDs: changed})
	}
	return changed
}

// All returns a copy of the ordered message list.
func (t *Timeline) All() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Timeline) notify(e event.TimelineEvent) {
	t.mu.Lock()
	observers := make([]func(event.TimelineEvent), len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, fn := range observers {
		fn(e)
	}
}
