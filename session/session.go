// Package session owns the lifecycle of one open conversation: history
// load, live subscription, send and read operations.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"rental-chat/contract"
	"rental-chat/domain"
	"rental-chat/errors"
	"rental-chat/projection"
)

type State int

const (
	Idle State = iota
	Opening
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session mediates all reads and writes of one conversation.
//
// At most one live subscription is held at a time. Open releases the
// previous handle before subscribing again, and Close is idempotent.
// History fetch and live delivery both go through the timeline's
// deduplicating insert, so their relative order does not matter.
type Session struct {
	mu         sync.Mutex
	log        *slog.Logger
	backend    contract.Backend
	self       domain.ProfileRef
	partner    domain.ProfileRef
	key        domain.ConversationKey
	timeline   *projection.Timeline
	sub        contract.Subscription
	state      State
	generation uint64
}

func NewSession(log *slog.Logger, backend contract.Backend, self domain.ProfileRef) *Session {
	return &Session{
		log:     log,
		backend: backend,
		self:    self,
		state:   Idle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Partner() domain.ProfileRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

// Timeline returns the conversation timeline of the current open state.
// Nil before the first Open.
func (s *Session) Timeline() *projection.Timeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline
}

// Open loads the conversation with the given partner and attaches the live
// channel. The returned slice is the initial ordered history.
//
// A failed history fetch aborts the open. A failed subscription does not:
// the session stays usable with whatever history was loaded, degraded to
// fetch-only mode. Messages addressed to the current user are marked read
// as a side effect; that call is best-effort.
func (s *Session) Open(ctx context.Context, partner domain.ProfileRef, key domain.ConversationKey) ([]domain.Message, error) {
	if partner.IsZero() {
		return nil, errors.ErrNoPartner
	}
	if key.IsZero() {
		key = domain.PairKey(s.self.ID, partner.ID)
	}

	s.mu.Lock()
	// Switching partner: the previous handle must be gone before a new
	// subscription exists, otherwise events are delivered twice.
	s.releaseLocked()
	s.generation++
	gen := s.generation
	s.partner = partner
	s.key = key
	s.timeline = projection.NewTimeline(key)
	timeline := s.timeline
	s.state = Opening
	s.mu.Unlock()

	history, err := s.backend.FetchMessages(ctx, key)
	if err != nil {
		s.mu.Lock()
		if s.generation == gen {
			s.state = Idle
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", errors.ErrFetchFailed, err)
	}

	s.mu.Lock()
	if s.generation != gen {
		// The session was closed or reopened while the fetch was in
		// flight. The stale result must not be applied.
		s.mu.Unlock()
		return nil, errors.ErrSessionClosed
	}
	s.state = Open
	s.mu.Unlock()

	var inbound []string
	for _, m := range history {
		timeline.Insert(m)
		if m.ReceiverID == s.self.ID {
			inbound = append(inbound, m.ID)
		}
	}

	// Opening the conversation counts as reading it.
	if len(inbound) > 0 {
		timeline.MarkRead(inbound...)
		if err := s.backend.MarkConversationRead(ctx, key, s.self.ID); err != nil {
			s.log.Warn("Bulk mark-as-read on open failed",
				"conversation", key.String(), "error", fmt.Errorf("%w: %v", errors.ErrMarkReadFailed, err))
		}
	}

	sub, err := s.backend.SubscribeInserts(ctx, key, func(m domain.Message) {
		s.onLiveMessage(gen, m)
	})
	if err != nil {
		s.log.Warn("Conversation degraded to fetch-only mode",
			"conversation", key.String(), "error", fmt.Errorf("%w: %v", errors.ErrSubscriptionFailed, err))
		return timeline.All(), nil
	}

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		_ = sub.Release()
		return nil, errors.ErrSessionClosed
	}
	s.sub = sub
	s.mu.Unlock()

	return timeline.All(), nil
}

// Send submits a new unread message to the open conversation. The message
// is not appended locally: the live subscription is the single source of
// appends, which avoids double insertion when the echo arrives.
func (s *Session) Send(ctx context.Context, content string) (domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}

	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return domain.Message{}, errors.ErrSessionNotOpen
	}
	key := s.key
	receiver := s.partner.ID
	s.mu.Unlock()

	m, err := s.backend.InsertMessage(ctx, key, s.self.ID, receiver, content)
	if err != nil {
		// Content stays with the caller for retry, nothing is queued here.
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
	}
	return m, nil
}

// onLiveMessage merges one live insert. Replayed or duplicated deliveries
// are absorbed by the timeline. An inbound unread message triggers an
// at-most-once, non-retried mark-as-read.
func (s *Session) onLiveMessage(gen uint64, m domain.Message) {
	s.mu.Lock()
	if s.generation != gen || s.state != Open {
		s.mu.Unlock()
		return
	}
	timeline := s.timeline
	key := s.key
	s.mu.Unlock()

	if !timeline.Insert(m) {
		return
	}

	if m.ReceiverID == s.self.ID && !m.Read {
		timeline.MarkRead(m.ID)
		go func() {
			if err := s.backend.MarkConversationRead(context.Background(), key, s.self.ID); err != nil {
				s.log.Warn("Mark-as-read on receipt failed, not retrying",
					"conversation", key.String(), "message", m.ID,
					"error", fmt.Errorf("%w: %v", errors.ErrMarkReadFailed, err))
			}
		}()
	}
}

// Close releases the live subscription. Safe to call multiple times.
// Fetch results arriving after Close are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	s.generation++
	s.state = Closed
}

func (s *Session) releaseLocked() {
	if s.sub == nil {
		return
	}
	if err := s.sub.Release(); err != nil {
		s.log.Warn("Releasing live subscription failed", "conversation", s.key.String(), "error", err)
	}
	s.sub = nil
}
