//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.mongodb.org/mongo-driver/bson"

	"rental-chat/domain"
)

type IMessageRepository interface {
	Store(message domain.Message) error
	Fetch(key domain.ConversationKey) ([]domain.Message, error)
	MarkRead(key domain.ConversationKey, exceptSenderID string) ([]string, error)
}

// MessageRepository persists conversation messages in BadgerDB.
//
// The key is formatted as "msg:{conversation_key}:{timestamp_padded}:{id}" to:
//  1. Ensure chronological sorting using 19-digit zero padding
//     (lexicographical order).
//  2. Prevent data loss by using the message id as a collision
//     disconnector if two messages arrive at the same nanosecond.
type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

type messageRecord struct {
	ID         string    `bson:"id"`
	Key        string    `bson:"conversation_key"`
	SenderID   string    `bson:"sender_id"`
	ReceiverID string    `bson:"receiver_id"`
	Content    string    `bson:"content"`
	CreatedAt  time.Time `bson:"created_at"`
	Read       bool      `bson:"read"`
}

func messageKey(m domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		m.Key.String(),
		m.CreatedAt.UnixNano(),
		m.ID,
	))
}

func (r MessageRepository) Store(message domain.Message) error {
	bytes, err := bson.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), bytes)
	})
}

// Fetch returns the full conversation in chronological order. Thanks to
// the padded timestamp in the key, a forward prefix scan is already
// sorted by time.
func (r MessageRepository) Fetch(key domain.ConversationKey) ([]domain.Message, error) {
	var byteMessages [][]byte
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", key.String()))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				byteMessages = append(byteMessages, append([]byte(nil), value...))
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

	var messages []domain.Message
	for _, b := range byteMessages {
		var record messageRecord
		if err = bson.Unmarshal(b, &record); err != nil {
			return nil, err
		}
		messages = append(messages, toMessage(key, record))
	}
	return messages, nil
}

// MarkRead flips the read flag on every unread message of the
// conversation not sent by exceptSenderID, and returns the ids that
// changed. The flag never goes back to false.
func (r MessageRepository) MarkRead(key domain.ConversationKey, exceptSenderID string) ([]string, error) {
	var changed []string
	err := r.db.Update(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", key.String()))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var record messageRecord
			err := item.Value(func(value []byte) error {
				return bson.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if record.SenderID == exceptSenderID || record.Read {
				continue
			}
			record.Read = true
			bytes, err := bson.Marshal(record)
			if err != nil {
				return err
			}
			if err := txn.Set(append([]byte(nil), item.Key()...), bytes); err != nil {
				return err
			}
			changed = append(changed, record.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

func fromMessage(m domain.Message) messageRecord {
	return messageRecord{
		ID:         m.ID,
		Key:        m.Key.String(),
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt.UTC(),
		Read:       m.Read,
	}
}

func toMessage(key domain.ConversationKey, record messageRecord) domain.Message {
	return domain.Message{
		ID:         record.ID,
		Key:        key,
		SenderID:   record.SenderID,
		ReceiverID: record.ReceiverID,
		Content:    record.Content,
		CreatedAt:  record.CreatedAt.UTC(),
		Read:       record.Read,
	}
}
