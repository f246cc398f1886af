// Package notifications maintains a user's notification feed: periodic
// refresh plus optimistic read mutations.
package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"rental-chat/contract"
	"rental-chat/domain"
	"rental-chat/errors"
)

// Feed holds the local copy of one user's notifications.
//
// Refresh replaces the whole state; MarkRead and MarkAllRead mutate it
// optimistically before the remote call resolves and do NOT roll back on
// remote failure. Local and remote read-state can therefore drift until
// the next refresh; that trade-off is deliberate and observable.
type Feed struct {
	mu      sync.Mutex
	log     *slog.Logger
	backend contract.Backend
	userID  string
	items   []domain.Notification
	unread  int
}

func NewFeed(log *slog.Logger, backend contract.Backend, userID string) *Feed {
	return &Feed{
		log:     log,
		backend: backend,
		userID:  userID,
	}
}

func (f *Feed) UserID() string {
	return f.userID
}

// Refresh fetches the notification list and the unread counter and
// replaces the local state wholesale. The two fetches are independent
// calls; a transient mismatch between them is accepted.
func (f *Feed) Refresh(ctx context.Context) error {
	items, err := f.backend.FetchNotifications(ctx, f.userID)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}
	unread, err := f.backend.FetchUnreadCount(ctx, f.userID)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}

	f.mu.Lock()
	f.items = items
	f.unread = unread
	f.mu.Unlock()
	return nil
}

// MarkRead optimistically marks one notification read and decrements the
// unread counter, then tells the backend. A backend failure is logged and
// the optimistic change stays in place.
func (f *Feed) MarkRead(ctx context.Context, notificationID string) {
	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID != notificationID {
			continue
		}
		if !f.items[i].IsRead {
			f.items[i].IsRead = true
			if f.unread > 0 {
				f.unread--
			}
		}
		break
	}
	f.mu.Unlock()

	if err := f.backend.MarkNotificationRead(ctx, f.userID, notificationID); err != nil {
		f.log.Warn("Notification mark-as-read failed, local state kept",
			"user", f.userID, "notification", notificationID,
			"error", fmt.Errorf("%w: %v", errors.ErrMarkReadFailed, err))
	}
}

// MarkAllRead optimistically marks every notification read and zeroes the
// counter. Same non-rollback policy as MarkRead.
func (f *Feed) MarkAllRead(ctx context.Context) {
	f.mu.Lock()
	for i := range f.items {
		f.items[i].IsRead = true
	}
	f.unread = 0
	f.mu.Unlock()

	if err := f.backend.MarkAllNotificationsRead(ctx, f.userID); err != nil {
		f.log.Warn("Notification mark-all-as-read failed, local state kept",
			"user", f.userID, "error", fmt.Errorf("%w: %v", errors.ErrMarkReadFailed, err))
	}
}

// Items returns a copy of the current notification list.
func (f *Feed) Items() []domain.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Notification, len(f.items))
	copy(out, f.items)
	return out
}

func (f *Feed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// LocalUnread recounts unread items from the local list, bypassing the
// separately fetched counter. Useful to observe drift between the two.
func (f *Feed) LocalUnread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.CountBy(f.items, func(n domain.Notification) bool {
		return !n.IsRead
	})
}
