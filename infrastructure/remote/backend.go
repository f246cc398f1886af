// Package remote implements the backend against the hosted platform:
// MongoDB for documents, NATS for the live message channel, Redis for the
// unread notification counter.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rental-chat/contract"
	"rental-chat/domain"
)

const (
	messagesCollection      = "messages"
	notificationsCollection = "notifications"
	relationshipsCollection = "relationships"
)

type Backend struct {
	log   *slog.Logger
	db    *mongo.Database
	nc    *nats.Conn
	redis *redis.Client
	now   func() time.Time
}

func NewBackend(log *slog.Logger, db *mongo.Database, nc *nats.Conn, rdb *redis.Client) *Backend {
	return &Backend{log: log, db: db, nc: nc, redis: rdb, now: time.Now}
}

type messageDoc struct {
	ID         string    `bson:"_id"`
	Key        string    `bson:"conversation_key"`
	SenderID   string    `bson:"sender_id"`
	ReceiverID string    `bson:"receiver_id"`
	Content    string    `bson:"content"`
	CreatedAt  time.Time `bson:"created_at"`
	Read       bool      `bson:"read"`
}

type notificationDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Message   string    `bson:"message"`
	Type      string    `bson:"type"`
	IsRead    bool      `bson:"is_read"`
	CreatedAt time.Time `bson:"created_at"`
}

type relationshipDoc struct {
	TenantID     string `bson:"tenant_id"`
	TenantName   string `bson:"tenant_name"`
	LandlordID   string `bson:"landlord_id"`
	LandlordName string `bson:"landlord_name"`
}

// subjectFor maps a conversation key to its NATS subject. Colons are not
// token-friendly, so key segments become subject tokens.
func subjectFor(key domain.ConversationKey) string {
	return "messages." + strings.ReplaceAll(key.String(), ":", ".")
}

func unreadCounterKey(userID string) string {
	return "ntf:unread:" + userID
}

func (b *Backend) FetchMessages(ctx context.Context, key domain.ConversationKey) ([]domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := b.db.Collection(messagesCollection).
		Find(ctx, bson.M{"conversation_key": key.String()}, opts)
	if err != nil {
		return nil, err
	}

	var docs []messageDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(docs))
	for _, doc := range docs {
		messages = append(messages, toMessage(key, doc))
	}
	return messages, nil
}

// InsertMessage persists the message, then publishes it on the
// conversation subject so every live subscriber receives the insert.
func (b *Backend) InsertMessage(ctx context.Context, key domain.ConversationKey, senderID, receiverID, content string) (domain.Message, error) {
	doc := messageDoc{
		ID:         uuid.NewString(),
		Key:        key.String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  b.now().UTC(),
		Read:       false,
	}
	if _, err := b.db.Collection(messagesCollection).InsertOne(ctx, doc); err != nil {
		return domain.Message{}, err
	}

	payload, err := bson.Marshal(doc)
	if err != nil {
		return domain.Message{}, err
	}
	if err := b.nc.Publish(subjectFor(key), payload); err != nil {
		// The message is persisted; subscribers will pick it up on their
		// next history fetch. Delivery here is best-effort.
		b.log.Warn("Live publish failed", "conversation", key.String(), "error", err)
	}
	return toMessage(key, doc), nil
}

func (b *Backend) MarkConversationRead(ctx context.Context, key domain.ConversationKey, exceptSenderID string) error {
	filter := bson.M{
		"conversation_key": key.String(),
		"sender_id":        bson.M{"$ne": exceptSenderID},
		"read":             false,
	}
	_, err := b.db.Collection(messagesCollection).
		UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	return err
}

func (b *Backend) SubscribeInserts(_ context.Context, key domain.ConversationKey, onInsert contract.InsertHandler) (contract.Subscription, error) {
	sub, err := b.nc.Subscribe(subjectFor(key), func(msg *nats.Msg) {
		var doc messageDoc
		if err := bson.Unmarshal(msg.Data, &doc); err != nil {
			b.log.Warn("Dropping undecodable live message", "subject", msg.Subject, "error", err)
			return
		}
		onInsert(toMessage(key, doc))
	})
	if err != nil {
		return nil, err
	}
	return &natsSubscription{sub: sub}, nil
}

func (b *Backend) FetchNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := b.db.Collection(notificationsCollection).
		Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}

	var docs []notificationDoc
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	notifications := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		notifications = append(notifications, toNotification(doc))
	}
	return notifications, nil
}

// FetchUnreadCount reads the Redis counter, not the document store. The
// counter and the list are two independent sources that can transiently
// disagree; callers reconcile on the next refresh.
func (b *Backend) FetchUnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := b.redis.Get(ctx, unreadCounterKey(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (b *Backend) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	res, err := b.db.Collection(notificationsCollection).
		UpdateOne(ctx, bson.M{"_id": notificationID, "user_id": userID, "is_read": false},
			bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return err
	}
	if res.ModifiedCount > 0 {
		b.decrementUnread(ctx, userID)
	}
	return nil
}

func (b *Backend) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	_, err := b.db.Collection(notificationsCollection).
		UpdateMany(ctx, bson.M{"user_id": userID, "is_read": false},
			bson.M{"$set": bson.M{"is_read": true}})
	if err != nil {
		return err
	}
	return b.redis.Set(ctx, unreadCounterKey(userID), 0, 0).Err()
}

func (b *Backend) ResolveRelationship(ctx context.Context, profileID string, profileType domain.ProfileType) ([]domain.ProfileRef, error) {
	collection := b.db.Collection(relationshipsCollection)

	switch profileType {
	case domain.ProfileTenant:
		var doc relationshipDoc
		err := collection.FindOne(ctx, bson.M{"tenant_id": profileID}).Decode(&doc)
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.ProfileRef{{ID: doc.LandlordID, Name: doc.LandlordName, Type: domain.ProfileLandlord}}, nil

	case domain.ProfileLandlord:
		opts := options.Find().SetSort(bson.D{{Key: "tenant_id", Value: 1}})
		cursor, err := collection.Find(ctx, bson.M{"landlord_id": profileID}, opts)
		if err != nil {
			return nil, err
		}
		var docs []relationshipDoc
		if err = cursor.All(ctx, &docs); err != nil {
			return nil, err
		}
		partners := make([]domain.ProfileRef, 0, len(docs))
		for _, doc := range docs {
			partners = append(partners, domain.ProfileRef{ID: doc.TenantID, Name: doc.TenantName, Type: domain.ProfileTenant})
		}
		return partners, nil

	default:
		return nil, fmt.Errorf("unknown profile type %q", profileType)
	}
}

// PushNotification persists a notification and bumps the unread counter.
func (b *Backend) PushNotification(ctx context.Context, userID, title, message string, kind domain.NotificationType) (domain.Notification, error) {
	doc := notificationDoc{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      string(kind),
		IsRead:    false,
		CreatedAt: b.now().UTC(),
	}
	if _, err := b.db.Collection(notificationsCollection).InsertOne(ctx, doc); err != nil {
		return domain.Notification{}, err
	}
	if err := b.redis.Incr(ctx, unreadCounterKey(userID)).Err(); err != nil {
		b.log.Warn("Unread counter increment failed", "user", userID, "error", err)
	}
	return toNotification(doc), nil
}

func (b *Backend) decrementUnread(ctx context.Context, userID string) {
	val, err := b.redis.Decr(ctx, unreadCounterKey(userID)).Result()
	if err != nil {
		b.log.Warn("Unread counter decrement failed", "user", userID, "error", err)
		return
	}
	// The counter and the documents are independent; clamp drift below zero.
	if val < 0 {
		if err := b.redis.Set(ctx, unreadCounterKey(userID), 0, 0).Err(); err != nil {
			b.log.Warn("Unread counter reset failed", "user", userID, "error", err)
		}
	}
}

func toMessage(key domain.ConversationKey, doc messageDoc) domain.Message {
	return domain.Message{
		ID:         doc.ID,
		Key:        key,
		SenderID:   doc.SenderID,
		ReceiverID: doc.ReceiverID,
		Content:    doc.Content,
		CreatedAt:  doc.CreatedAt.UTC(),
		Read:       doc.Read,
	}
}

func toNotification(doc notificationDoc) domain.Notification {
	return domain.Notification{
		ID:        doc.ID,
		UserID:    doc.UserID,
		Title:     doc.Title,
		Message:   doc.Message,
		Type:      domain.NotificationType(doc.Type),
		IsRead:    doc.IsRead,
		CreatedAt: doc.CreatedAt.UTC(),
	}
}

type natsSubscription struct {
	once sync.Once
	sub  *nats.Subscription
	err  error
}

// Release unsubscribes exactly once; later calls return the first result.
func (s *natsSubscription) Release() error {
	s.once.Do(func() {
		s.err = s.sub.Unsubscribe()
	})
	return s.err
}
