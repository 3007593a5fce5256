// Package clubctx tracks which club a session is looking at and which view
// it is on.
package clubctx

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

type View string

const (
	ViewClubSelection View = "/clubs"
	ViewDashboard     View = "/dashboard"
)

// Persister stores the last visited club so a later session can restore it.
type Persister interface {
	SaveLastClub(clubID string) error
}

type Selection struct {
	mu        sync.Mutex
	clubID    string
	view      View
	persister Persister
	onEvict   func(clubID, reason string)
}

type Option func(*Selection)

func WithPersister(p Persister) Option {
	return func(s *Selection) { s.persister = p }
}

// WithEvictHook registers a callback run after an eviction that actually
// cleared a club.
func WithEvictHook(fn func(clubID, reason string)) Option {
	return func(s *Selection) { s.onEvict = fn }
}

func NewSelection(opts ...Option) *Selection {
	s := &Selection{view: ViewClubSelection}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select makes clubID the active club and moves to its dashboard.
func (s *Selection) Select(clubID string) {
	s.mu.Lock()
	s.clubID = clubID
	s.view = ViewDashboard
	persister := s.persister
	s.mu.Unlock()

	if persister != nil {
		if err := persister.SaveLastClub(clubID); err != nil {
			log.Warn().Err(err).Str("club_id", clubID).Msg("Failed to persist last club")
		}
	}
}

func (s *Selection) Clear() {
	s.mu.Lock()
	s.clubID = ""
	s.mu.Unlock()
}

func (s *Selection) ActiveClub() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clubID
}

func (s *Selection) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Replace swaps the current view without touching the active club.
func (s *Selection) Replace(view View) {
	s.mu.Lock()
	s.view = view
	s.mu.Unlock()
}

// Evict clears the active club and returns to club selection. Evicting an
// already cleared selection changes nothing.
func (s *Selection) Evict(ctx context.Context, reason string) {
	s.mu.Lock()
	clubID := s.clubID
	s.clubID = ""
	s.view = ViewClubSelection
	persister := s.persister
	onEvict := s.onEvict
	s.mu.Unlock()

	if clubID == "" {
		return
	}

	log.Ctx(ctx).Info().
		Str("club_id", clubID).
		Str("reason", reason).
		Msg("Evicted from club")
	if persister != nil {
		if err := persister.SaveLastClub(""); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("Failed to clear last club")
		}
	}
	if onEvict != nil {
		onEvict(clubID, reason)
	}
}
