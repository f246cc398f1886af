package domain

import (
	"fmt"
	"time"
)

// ConversationKey scopes messages to one two-party thread.
//
// Two keying schemes coexist across deployments: an explicit connection id,
// or the unordered pair of participant profile ids. The pair form is
// normalized so that PairKey(a, b) == PairKey(b, a).
type ConversationKey struct {
	connectionID string
	low, high    string
}

func ConnectionKey(id string) ConversationKey {
	return ConversationKey{connectionID: id}
}

func PairKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey{low: a, high: b}
}

func (k ConversationKey) IsZero() bool {
	return k == ConversationKey{}
}

// String yields a stable representation usable as a storage prefix or a
// transport subject token.
func (k ConversationKey) String() string {
	if k.connectionID != "" {
		return fmt.Sprintf("conn:%s", k.connectionID)
	}
	return fmt.Sprintf("pair:%s:%s", k.low, k.high)
}

// Message represents one chat message of a two-party conversation.
// ID and CreatedAt are assigned by the backend on insert, never by callers.
type Message struct {
	ID         string
	Key        ConversationKey
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Read       bool
}

// Less orders messages by (CreatedAt, ID). CreatedAt is authoritative,
// the id comparison only breaks timestamp ties deterministically.
func (m Message) Less(other Message) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}
