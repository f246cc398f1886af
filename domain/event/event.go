package event

import (
	"rental-chat/domain"
)

// TimelineEvent is emitted by a timeline after a mutation that changed its
// state. UI layers consume these instead of polling the timeline.
type TimelineEvent interface {
	Key() domain.ConversationKey
}

// MessageArrived signals that a new message entered the timeline, either
// from the history fetch or from the live subscription.
type MessageArrived struct {
	Message domain.Message
}

func (e MessageArrived) Key() domain.ConversationKey {
	return e.Message.Key
}

// MessagesMarkedRead signals that the read flag flipped on the given ids.
type MessagesMarkedRead struct {
	Conversation domain.ConversationKey
	IDs          []string
}

func (e MessagesMarkedRead) Key() domain.ConversationKey {
	return e.Conversation
}
