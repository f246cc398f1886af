//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"

	"rental-chat/domain"
)

// maxPaddedTimestamp is past any real key; seeking to it positions a
// reverse iterator on the newest entry of a prefix.
const maxPaddedTimestamp = "9999999999999999999"

type INotificationRepository interface {
	Store(n domain.Notification) error
	Fetch(userID string) ([]domain.Notification, error)
	CountUnread(userID string) (int, error)
	MarkRead(userID, notificationID string) error
	MarkAllRead(userID string) error
}

// NotificationRepository persists user notifications in BadgerDB under
// "ntf:{user_id}:{timestamp_padded}:{id}" keys, newest served first.
type NotificationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger) NotificationRepository {
	return NotificationRepository{db: db, log: log}
}

type notificationRecord struct {
	ID        string    `bson:"id"`
	UserID    string    `bson:"user_id"`
	Title     string    `bson:"title"`
	Message   string    `bson:"message"`
	Type      string    `bson:"type"`
	IsRead    bool      `bson:"is_read"`
	CreatedAt time.Time `bson:"created_at"`
}

func notificationKey(n domain.Notification) []byte {
	return []byte(fmt.Sprintf("ntf:%s:%019d:%s", n.UserID, n.CreatedAt.UnixNano(), n.ID))
}

func notificationPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("ntf:%s:", userID))
}

func (r NotificationRepository) Store(n domain.Notification) error {
	bytes, err := bson.Marshal(fromNotification(n))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(n), bytes)
	})
}

// Fetch returns the user's notifications, newest first.
func (r NotificationRepository) Fetch(userID string) ([]domain.Notification, error) {
	var raw [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte(nil), prefix...), []byte(maxPaddedTimestamp)...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				raw = append(raw, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var notifications []domain.Notification
	for _, b := range raw {
		var record notificationRecord
		if err = bson.Unmarshal(b, &record); err != nil {
			return nil, err
		}
		notifications = append(notifications, toNotification(record))
	}
	return notifications, nil
}

func (r NotificationRepository) CountUnread(userID string) (int, error) {
	count := 0
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record notificationRecord
			err := it.Item().Value(func(value []byte) error {
				return bson.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if !record.IsRead {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead flips one notification to read. Unknown ids are a no-op.
func (r NotificationRepository) MarkRead(userID, notificationID string) error {
	return r.markMatching(userID, func(record notificationRecord) bool {
		return record.ID == notificationID
	})
}

func (r NotificationRepository) MarkAllRead(userID string) error {
	return r.markMatching(userID, func(notificationRecord) bool {
		return true
	})
}

func (r NotificationRepository) markMatching(userID string, match func(notificationRecord) bool) error {
	return r.db.Update(func(txn *badger.Txn) error {
		prefix := notificationPrefix(userID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var record notificationRecord
			err := item.Value(func(value []byte) error {
				return bson.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if record.IsRead || !match(record) {
				continue
			}
			record.IsRead = true
			bytes, err := bson.Marshal(record)
			if err != nil {
				return err
			}
			if err := txn.Set(append([]byte(nil), item.Key()...), bytes); err != nil {
				return err
			}
		}
		return nil
	})
}

func fromNotification(n domain.Notification) notificationRecord {
	return notificationRecord{
		ID:        n.ID,
		UserID:    n.UserID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func toNotification(record notificationRecord) domain.Notification {
	return domain.Notification{
		ID:        record.ID,
		UserID:    record.UserID,
		Title:     record.Title,
		Message:   record.Message,
		Type:      domain.NotificationType(record.Type),
		IsRead:    record.IsRead,
		CreatedAt: record.CreatedAt.UTC(),
	}
}
