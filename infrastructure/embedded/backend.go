// Package embedded assembles a self-contained backend on BadgerDB, with
// live delivery through the in-process registry. Used for local and
// single-node deployments, and as the reference implementation in tests.
package embedded

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"rental-chat/contract"
	"rental-chat/domain"
	"rental-chat/repositories"
	"rental-chat/runtime"
)

type Backend struct {
	log           *slog.Logger
	messages      repositories.IMessageRepository
	notifications repositories.INotificationRepository
	relationships repositories.IRelationshipRepository
	registry      *runtime.Registry
	now           func() time.Time
}

func NewBackend(
	log *slog.Logger,
	messages repositories.IMessageRepository,
	notifications repositories.INotificationRepository,
	relationships repositories.IRelationshipRepository,
	registry *runtime.Registry,
) *Backend {
	return &Backend{
		log:           log,
		messages:      messages,
		notifications: notifications,
		relationships: relationships,
		registry:      registry,
		now:           time.Now,
	}
}

// Registry exposes the live fanout, mainly so callers can observe active
// subscriptions.
func (b *Backend) Registry() *runtime.Registry {
	return b.registry
}

func (b *Backend) FetchMessages(_ context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	return b.messages.Fetch(key)
}

// InsertMessage assigns id and timestamp, persists the message and fans
// it out to live subscribers of the conversation.
func (b *Backend) InsertMessage(_ context.Context, key domain.ConversationKey, senderID, receiverID, content string) (domain.Message, error) {
	m := domain.Message{
		ID:         uuid.NewString(),
		Key:        key,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  b.now().UTC(),
		Read:       false,
	}
	if err := b.messages.Store(m); err != nil {
		return domain.Message{}, err
	}
	b.registry.Publish(m)
	return m, nil
}

func (b *Backend) MarkConversationRead(_ context.Context, key domain.ConversationKey, exceptSenderID string) error {
	changed, err := b.messages.MarkRead(key, exceptSenderID)
	if err != nil {
		return err
	}
	if len(changed) > 0 {
		b.log.Debug("Conversation marked read", "conversation", key.String(), "count", len(changed))
	}
	return nil
}

func (b *Backend) SubscribeInserts(_ context.Context, key domain.ConversationKey, onInsert contract.InsertHandler) (contract.Subscription, error) {
	return b.registry.Subscribe(key, onInsert), nil
}

func (b *Backend) FetchNotifications(_ context.Context, userID string) ([]domain.Notification, error) {
	return b.notifications.Fetch(userID)
}

func (b *Backend) FetchUnreadCount(_ context.Context, userID string) (int, error) {
	return b.notifications.CountUnread(userID)
}

func (b *Backend) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	return b.notifications.MarkRead(userID, notificationID)
}

func (b *Backend) MarkAllNotificationsRead(_ context.Context, userID string) error {
	return b.notifications.MarkAllRead(userID)
}

func (b *Backend) ResolveRelationship(_ context.Context, profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error) {
	return b.relationships.Partners(profileID, profileType)
}

// PushNotification creates a notification with a backend-assigned id.
// Record forms and payment reminders feed the notification stream through
// this entry point.
func (b *Backend) PushNotification(_ context.Context, userID, title, message string, kind domain.NotificationType) (domain.Notification, error) {
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		IsRead:    false,
		CreatedAt: b.now().UTC(),
	}
	if err := b.notifications.Store(n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// LinkProfiles records a tenant/landlord relationship.
func (b *Backend) LinkProfiles(_ context.Context, tenant, landlord domain.ProfileRef) error {
	return b.relationships.Link(tenant, landlord)
}
