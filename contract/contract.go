//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"rental-chat/domain"
)

// Backend is the seam to the hosted persistence and identity platform.
// Everything below it (document store, live channel, counters) is an
// external collaborator; the messaging core only talks through this
// interface.
type Backend interface {
	FetchMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error)
	// InsertMessage persists a new unread message. The backend assigns
	// ID and CreatedAt; callers never generate ids.
	InsertMessage(ctx context.Context, key domain.ConversationKey, senderID, receiverID, content string) (domain.Message, error)
	// MarkConversationRead flips the read flag on every message of the
	// conversation not sent by exceptSenderID.
	MarkConversationRead(ctx context.Context, key domain.ConversationKey, exceptSenderID string) error
	// SubscribeInserts opens a live channel delivering every newly
	// inserted message matching the conversation key.
	SubscribeInserts(ctx context.Context, key domain.ConversationKey, onInsert InsertHandler) (Subscription, error)

	FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error)
	FetchUnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) error

	ResolveRelationship(ctx context.Context, profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error)
}

// InsertHandler receives newly inserted messages from a live channel.
type InsertHandler func(domain.Message)

// Subscription is the handle of one live channel. Release must be
// idempotent; a released subscription delivers nothing.
type Subscription interface {
	Release() error
}

// IRegistry fans inserted messages out to in-process subscribers.
// Used by the embedded backend as its live channel.
type IRegistry interface {
	Publish(m domain.Message)
	Subscribe(key domain.ConversationKey, fn InsertHandler) Subscription
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker
// lifecycle events, avoiding manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
