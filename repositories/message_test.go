package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"rental-chat/domain"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// BSON datetimes carry millisecond precision, so fixtures stay on
// millisecond boundaries.
func at(minutes int) time.Time {
	return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute)
}

func Test_Store_And_Fetch_ChronologicalOrder(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	key := domain.PairKey("tenant-1", "landlord-1")

	messages := []domain.Message{
		{ID: "m-b", Key: key, SenderID: "tenant-1", ReceiverID: "landlord-1", Content: "second", CreatedAt: at(1)},
		{ID: "m-a", Key: key, SenderID: "landlord-1", ReceiverID: "tenant-1", Content: "first", CreatedAt: at(0)},
		{ID: "m-c", Key: key, SenderID: "tenant-1", ReceiverID: "landlord-1", Content: "third", CreatedAt: at(2)},
	}
	for _, m := range messages {
		req.NoError(repository.Store(m))
	}

	fetched, err := repository.Fetch(key)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal("m-a", fetched[0].ID)
	req.Equal("m-b", fetched[1].ID)
	req.Equal("m-c", fetched[2].ID)
	req.Equal("first", fetched[0].Content)
	req.True(fetched[0].CreatedAt.Equal(at(0)))
}

func Test_Fetch_IsScopedToTheConversation(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	pair := domain.PairKey("tenant-1", "landlord-1")
	conn := domain.ConnectionKey("conn-42")

	req.NoError(repository.Store(domain.Message{ID: "m-1", Key: pair, SenderID: "tenant-1", ReceiverID: "landlord-1", Content: "pair", CreatedAt: at(0)}))
	req.NoError(repository.Store(domain.Message{ID: "m-2", Key: conn, SenderID: "tenant-2", ReceiverID: "landlord-1", Content: "conn", CreatedAt: at(0)}))

	// Both keying schemes round-trip independently
	fromPair, err := repository.Fetch(pair)
	req.NoError(err)
	req.Len(fromPair, 1)
	req.Equal("pair", fromPair[0].Content)

	fromConn, err := repository.Fetch(conn)
	req.NoError(err)
	req.Len(fromConn, 1)
	req.Equal("conn", fromConn[0].Content)
}

func Test_MarkRead_SkipsTheExcludedSender(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default())
	key := domain.PairKey("tenant-1", "landlord-1")

	req.NoError(repository.Store(domain.Message{ID: "m-in", Key: key, SenderID: "landlord-1", ReceiverID: "tenant-1", Content: "to me", CreatedAt: at(0)}))
	req.NoError(repository.Store(domain.Message{ID: "m-out", Key: key, SenderID: "tenant-1", ReceiverID: "landlord-1", Content: "from me", CreatedAt: at(1)}))

	changed, err := repository.MarkRead(key, "tenant-1")
	req.NoError(err)
	req.Equal([]string{"m-in"}, changed)

	fetched, err := repository.Fetch(key)
	req.NoError(err)
	req.True(fetched[0].Read)
	req.False(fetched[1].Read)

	// Already-read messages are not reported again
	changed, err = repository.MarkRead(key, "tenant-1")
	req.NoError(err)
	req.Empty(changed)
}
