package workers

import (
	"context"
	"log/slog"
	"time"
)

// Refresher is the slice of the notification feed the poller needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// NotificationPollWorker refreshes a notification feed once eagerly and
// then on a fixed interval, for the lifetime of its context. The ticker
// is owned by the worker and stops with it: no timer survives teardown.
type NotificationPollWorker struct {
	log      *slog.Logger
	feed     Refresher
	interval time.Duration
}

func NewNotificationPollWorker(log *slog.Logger, feed Refresher, interval time.Duration) *NotificationPollWorker {
	return &NotificationPollWorker{log: log, feed: feed, interval: interval}
}

func (w *NotificationPollWorker) Run(ctx context.Context) error {
	w.log.Info("Starting notification poll worker", "interval", w.interval)

	// Eager first refresh so the feed is populated before the first tick.
	if err := w.feed.Refresh(ctx); err != nil {
		w.log.Warn("Initial notification refresh failed", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.feed.Refresh(ctx); err != nil {
				// The next tick retries; a refresh failure is not fatal.
				w.log.Warn("Notification refresh failed", "error", err)
			}
		}
	}
}
