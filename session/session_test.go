package session

import (
	"context"
	goerrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rental-chat/contract"
	"rental-chat/domain"
	"rental-chat/errors"
)

// fakeBackend simulates the persistence platform. Function fields allow
// error injection per test; counters track subscription lifecycles.
type fakeBackend struct {
	contract.Backend

	mu             sync.Mutex
	history        []domain.Message
	fetchErr       error
	fetchStarted   chan struct{}
	fetchRelease   chan struct{}
	insertErr      error
	inserted       []domain.Message
	subscribeErr   error
	subscribeCalls int
	releaseCalls   int
	onInsert       contract.InsertHandler
	markReadCalls  chan string
}

func newFakeBackend(history ...domain.Message) *fakeBackend {
	return &fakeBackend{
		history:       history,
		markReadCalls: make(chan string, 16),
	}
}

func (f *fakeBackend) FetchMessages(_ context.Context, _ domain.ConversationKey) ([]domain.Message, error) {
	if f.fetchStarted != nil {
		close(f.fetchStarted)
	}
	if f.fetchRelease != nil {
		<-f.fetchRelease
	}
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.history...), nil
}

func (f *fakeBackend) InsertMessage(_ context.Context, key domain.ConversationKey, senderID, receiverID, content string) (domain.Message, error) {
	if f.insertErr != nil {
		return domain.Message{}, f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	m := domain.Message{
		ID:         fmt.Sprintf("srv-%d", len(f.inserted)+1),
		Key:        key,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	f.inserted = append(f.inserted, m)
	return m, nil
}

func (f *fakeBackend) MarkConversationRead(_ context.Context, key domain.ConversationKey, _ string) error {
	f.markReadCalls <- key.String()
	return nil
}

func (f *fakeBackend) SubscribeInserts(_ context.Context, _ domain.ConversationKey, onInsert contract.InsertHandler) (contract.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	f.onInsert = onInsert
	return &fakeSubscription{backend: f}, nil
}

func (f *fakeBackend) deliver(m domain.Message) {
	f.mu.Lock()
	handler := f.onInsert
	f.mu.Unlock()
	handler(m)
}

func (f *fakeBackend) active() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeCalls - f.releaseCalls
}

type fakeSubscription struct {
	backend *fakeBackend
}

func (s *fakeSubscription) Release() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.releaseCalls++
	return nil
}

var (
	tenant   = domain.ProfileRef{ID: "tenant-1", Name: "Alice", Type: domain.ProfileTenant}
	landlord = domain.ProfileRef{ID: "landlord-1", Name: "Bruno", Type: domain.ProfileLandlord}
)

func historyMessage(id string, at time.Time, from, to domain.ProfileRef) domain.Message {
	return domain.Message{
		ID:         id,
		Key:        domain.PairKey(tenant.ID, landlord.ID),
		SenderID:   from.ID,
		ReceiverID: to.ID,
		Content:    "hello",
		CreatedAt:  at,
	}
}

func TestSession_Open_ReturnsOrderedHistoryAndMarksInboundRead(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	backend := newFakeBackend(
		historyMessage("m-2", t0.Add(time.Minute), tenant, landlord),
		historyMessage("m-1", t0, landlord, tenant),
	)
	sess := NewSession(slog.Default(), backend, tenant)

	history, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})

	req.NoError(err)
	req.Equal(Open, sess.State())
	req.Len(history, 2)
	// Sorted by createdAt regardless of fetch order
	req.Equal("m-1", history[0].ID)
	req.Equal("m-2", history[1].ID)
	// The message addressed to the tenant is read locally...
	req.True(history[0].Read)
	req.False(history[1].Read)
	// ...and the bulk mark-as-read reached the backend
	select {
	case <-backend.markReadCalls:
	default:
		t.Fatal("expected a bulk mark-as-read call on open")
	}
}

func TestSession_Open_FetchFailureSurfaces(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	backend.fetchErr = goerrors.New("boom")
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})

	req.ErrorIs(err, errors.ErrFetchFailed)
	req.Equal(Idle, sess.State())
	req.Equal(0, backend.active())
}

func TestSession_Open_SubscriptionFailureDegradesToFetchOnly(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	backend := newFakeBackend(historyMessage("m-1", t0, landlord, tenant))
	backend.subscribeErr = goerrors.New("channel refused")
	sess := NewSession(slog.Default(), backend, tenant)

	history, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})

	// The session stays usable with the loaded history
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(Open, sess.State())
}

func TestSession_LiveDuplicateDeliveryIsAbsorbed(t *testing.T) {
	req := require.New(t)
	t0 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := historyMessage("m-a", t0, tenant, landlord)
	b := historyMessage("m-b", t0.Add(time.Second), tenant, landlord)
	backend := newFakeBackend(a, b)
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})
	req.NoError(err)

	// The transport replays b: history fetch and live delivery share the
	// same dedup path, so the timeline must not grow
	backend.deliver(b)
	backend.deliver(b)

	all := sess.Timeline().All()
	req.Len(all, 2)
	req.Equal("m-a", all[0].ID)
	req.Equal("m-b", all[1].ID)
}

func TestSession_SwitchingPartnerKeepsExactlyOneSubscription(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	sess := NewSession(slog.Default(), backend, landlord)

	otherTenant := domain.ProfileRef{ID: "tenant-2", Name: "Chloé", Type: domain.ProfileTenant}

	_, err := sess.Open(context.Background(), tenant, domain.ConversationKey{})
	req.NoError(err)
	_, err = sess.Open(context.Background(), otherTenant, domain.ConversationKey{})
	req.NoError(err)

	// P1's handle released, P2's the only live one
	req.Equal(2, backend.subscribeCalls)
	req.Equal(1, backend.releaseCalls)
	req.Equal(1, backend.active())

	sess.Close()
	sess.Close() // idempotent
	req.Equal(0, backend.active())
	req.Equal(Closed, sess.State())
}

func TestSession_Send_Validation(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Send(context.Background(), "   ")
	req.ErrorIs(err, errors.ErrEmptyContent)

	_, err = sess.Send(context.Background(), "hello")
	req.ErrorIs(err, errors.ErrSessionNotOpen)
}

func TestSession_Send_DoesNotAppendLocally(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})
	req.NoError(err)

	sent, err := sess.Send(context.Background(), "Hello")
	req.NoError(err)
	req.Equal(0, sess.Timeline().Len())

	// The echo from the live channel is the single source of appends
	backend.deliver(sent)
	req.Equal(1, sess.Timeline().Len())

	// A replay of the echo still appends nothing
	backend.deliver(sent)
	req.Equal(1, sess.Timeline().Len())
}

func TestSession_Send_FailurePreservesNothingLocally(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})
	req.NoError(err)

	backend.insertErr = goerrors.New("rejected")
	_, err = sess.Send(context.Background(), "Hello")
	req.ErrorIs(err, errors.ErrSendFailed)
	req.Equal(0, sess.Timeline().Len())
}

func TestSession_InboundLiveMessageTriggersMarkRead(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend()
	sess := NewSession(slog.Default(), backend, tenant)

	_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})
	req.NoError(err)

	inbound := historyMessage("m-live", time.Now().UTC(), landlord, tenant)
	backend.deliver(inbound)

	select {
	case <-backend.markReadCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an asynchronous mark-as-read call")
	}

	all := sess.Timeline().All()
	req.Len(all, 1)
	req.True(all[0].Read)
}

func TestSession_StaleFetchResultIsDiscardedAfterClose(t *testing.T) {
	req := require.New(t)
	backend := newFakeBackend(historyMessage("m-1", time.Now().UTC(), landlord, tenant))
	backend.fetchStarted = make(chan struct{})
	backend.fetchRelease = make(chan struct{})
	sess := NewSession(slog.Default(), backend, tenant)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Open(context.Background(), landlord, domain.ConversationKey{})
		done <- err
	}()

	<-backend.fetchStarted
	sess.Close()
	close(backend.fetchRelease)

	req.ErrorIs(<-done, errors.ErrSessionClosed)
	req.Equal(Closed, sess.State())
	req.Equal(0, backend.active())
}
