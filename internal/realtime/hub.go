package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultSubscriberBuffer = 64

var ErrHubClosed = errors.New("realtime hub closed")

// Stream delivers the events of one subscription. Close is idempotent and
// closes the Events channel.
type Stream interface {
	Events() <-chan Event
	Close() error
}

// Feed is the subscribe side of a change feed.
type Feed interface {
	Subscribe(ctx context.Context, filter Filter) (Stream, error)
}

// Publisher is the write side of a change feed.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// Hub is an in-process change feed. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID uint64
	buffer int
	closed bool
	logger zerolog.Logger
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[uint64]*subscription),
		buffer: buffer,
		logger: log.With().Str("component", "realtime_hub").Logger(),
	}
}

type subscription struct {
	id     uint64
	filter Filter
	ch     chan Event
	hub    *Hub
	once   sync.Once

	stopMu sync.Mutex
	stop   func() bool
}

func (s *subscription) Events() <-chan Event { return s.ch }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.stopMu.Lock()
		if s.stop != nil {
			s.stop()
		}
		s.stopMu.Unlock()
		s.hub.remove(s.id)
		close(s.ch)
	})
	return nil
}

// Subscribe registers a filtered subscription. It is closed automatically
// when ctx is done.
func (h *Hub) Subscribe(ctx context.Context, filter Filter) (Stream, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.nextID++
	sub := &subscription{
		id:     h.nextID,
		filter: filter,
		ch:     make(chan Event, h.buffer),
		hub:    h,
	}
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	sub.stopMu.Lock()
	sub.stop = context.AfterFunc(ctx, func() { _ = sub.Close() })
	sub.stopMu.Unlock()

	h.logger.Debug().
		Uint64("subscription_id", sub.id).
		Str("user_id", filter.UserID).
		Str("club_id", filter.ClubID).
		Int("subscribers", count).
		Msg("Realtime subscription opened")
	return sub, nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
	h.logger.Debug().Uint64("subscription_id", id).Msg("Realtime subscription closed")
}

func (h *Hub) Publish(ctx context.Context, ev Event) {
	if ev.CommitAt.IsZero() {
		ev.CommitAt = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	delivered := 0
	for _, sub := range h.subs {
		if !sub.filter.Match(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			delivered++
		default:
			h.logger.Warn().
				Uint64("subscription_id", sub.id).
				Str("entity", string(ev.Entity)).
				Str("club_id", ev.ClubID()).
				Msg("Realtime subscriber buffer full, dropping event")
		}
	}

	log.Ctx(ctx).Debug().
		Str("entity", string(ev.Entity)).
		Str("change", string(ev.Type)).
		Str("club_id", ev.ClubID()).
		Int("delivered", delivered).
		Msg("Published realtime event")
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every open subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
}
