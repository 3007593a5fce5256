// Package livesync keeps a session's cached club data in step with the
// server and evicts the session from a club as soon as its membership stops
// being active.
//
// A Sync watches one (user, club) pair at a time. It listens to the user's own
// membership rows and to the club-scoped tables, invalidating cached query
// families as changes arrive, and runs a polling check with backoff as a
// fallback for missed notifications.
package livesync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/realtime"
)

const (
	DefaultInitialDelay = 5 * time.Second
	DefaultMinInterval  = 30 * time.Second
	DefaultMaxInterval  = 120 * time.Second
	DefaultCheckTimeout = 10 * time.Second
)

var (
	ErrMissingDependency = errors.New("livesync: missing dependency")
	ErrNoActiveClub      = errors.New("livesync: user and club are required")
)

// MembershipChecker reads the current membership state for a user in a club.
// A membership that no longer exists is reported as models.ErrMembershipNotFound
// or as a nil state.
type MembershipChecker interface {
	MembershipStatus(ctx context.Context, userID, clubID string) (*models.MembershipState, error)
}

type Invalidator interface {
	Invalidate(pred querycache.Predicate) int
}

// Evictor clears the active club and returns to club selection. It must be
// idempotent and must not call back into the Sync synchronously.
type Evictor interface {
	Evict(ctx context.Context, reason string)
}

type State int

const (
	StateUnsubscribed State = iota
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateSubscribed:
		return "subscribed"
	default:
		return "unsubscribed"
	}
}

type Options struct {
	Feed    realtime.Feed
	Checker MembershipChecker
	Cache   Invalidator
	Evictor Evictor

	// Clock defaults to the real clock.
	Clock clockwork.Clock
	// Logger defaults to the global logger.
	Logger *zerolog.Logger

	InitialDelay time.Duration
	MinInterval  time.Duration
	MaxInterval  time.Duration
	CheckTimeout time.Duration

	// StrictPoll evicts on any failed check instead of only on a confirmed
	// revocation.
	StrictPoll bool
}

type Sync struct {
	opts   Options
	logger zerolog.Logger
	online atomic.Bool

	lifecycle sync.Mutex
	mu        sync.Mutex
	cur       *session
}

func New(opts Options) (*Sync, error) {
	switch {
	case opts.Feed == nil:
		return nil, fmt.Errorf("%w: feed", ErrMissingDependency)
	case opts.Checker == nil:
		return nil, fmt.Errorf("%w: membership checker", ErrMissingDependency)
	case opts.Cache == nil:
		return nil, fmt.Errorf("%w: cache", ErrMissingDependency)
	case opts.Evictor == nil:
		return nil, fmt.Errorf("%w: evictor", ErrMissingDependency)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = DefaultInitialDelay
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = DefaultMaxInterval
	}
	if opts.CheckTimeout <= 0 {
		opts.CheckTimeout = DefaultCheckTimeout
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	s := &Sync{
		opts:   opts,
		logger: logger.With().Str("component", "livesync").Logger(),
	}
	s.online.Store(true)
	return s, nil
}

// Start watches clubID for userID, tearing down any previous pair first.
func (s *Sync) Start(ctx context.Context, userID, clubID string) error {
	if userID == "" || clubID == "" {
		return ErrNoActiveClub
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.detach().shutdown()

	logger := s.logger.With().Str("user_id", userID).Str("club_id", clubID).Logger()
	sessCtx, cancel := context.WithCancel(logger.WithContext(ctx))

	userStream, err := s.opts.Feed.Subscribe(sessCtx, realtime.Filter{
		Entities: []realtime.Entity{realtime.EntityClubMembers},
		UserID:   userID,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("subscribe to user changes: %w", err)
	}
	clubStream, err := s.opts.Feed.Subscribe(sessCtx, realtime.Filter{
		Entities: realtime.ClubScopedEntities,
		ClubID:   clubID,
	})
	if err != nil {
		_ = userStream.Close()
		cancel()
		return fmt.Errorf("subscribe to club changes: %w", err)
	}

	sess := &session{
		sync:       s,
		userID:     userID,
		clubID:     clubID,
		ctx:        sessCtx,
		cancel:     cancel,
		done:       make(chan struct{}),
		focus:      make(chan struct{}, 1),
		userStream: userStream,
		clubStream: clubStream,
		backoff:    newBackoff(s.opts.MinInterval, s.opts.MaxInterval),
		logger:     logger,
	}

	s.mu.Lock()
	s.cur = sess
	s.mu.Unlock()

	go sess.run()
	logger.Info().Msg("Live membership sync started")
	return nil
}

// Stop releases the current subscriptions and timers. It returns once the
// watch loop has exited and is safe to call when nothing is running.
func (s *Sync) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.detach().shutdown()
}

func (s *Sync) detach() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := s.cur
	s.cur = nil
	return sess
}

func (s *Sync) current() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *Sync) State() State {
	if sess := s.current(); sess != nil && sess.ctx.Err() == nil {
		return StateSubscribed
	}
	return StateUnsubscribed
}

// Focus reports that the app regained focus or visibility. The poll backoff
// restarts and a check runs immediately.
func (s *Sync) Focus() {
	sess := s.current()
	if sess == nil {
		return
	}
	select {
	case sess.focus <- struct{}{}:
	default:
	}
}

// SetOnline records connectivity. Poll ticks are skipped while offline.
func (s *Sync) SetOnline(online bool) {
	s.online.Store(online)
}

func (s *Sync) release(sess *session) {
	s.mu.Lock()
	if s.cur == sess {
		s.cur = nil
	}
	s.mu.Unlock()
}
