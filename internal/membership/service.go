// Package membership implements club creation, join requests and the member
// approval workflow. Every committed change is published as a realtime event.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api/authz"
	"github.com/codr1/VolleySmart/internal/db"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/ratelimit"
	"github.com/codr1/VolleySmart/internal/realtime"
)

var (
	ErrClubNotFound      = errors.New("club not found")
	ErrInvalidJoinCode   = errors.New("invalid join code")
	ErrAlreadyMember     = errors.New("already a member or request pending")
	ErrInvalidTransition = errors.New("membership cannot change to the requested status")
	ErrInvalidInput      = errors.New("invalid input")
)

// RateLimitError is returned when a join request is throttled.
type RateLimitError struct {
	RetryAfter time.Duration
	Reason     string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("join request rate limited (%s), retry in %s", e.Reason, e.RetryAfter.Round(time.Second))
}

// Action is a decision an admin or editor takes on another member.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionRemove  Action = "remove"
)

func ParseAction(raw string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject, ActionRemove:
		return a, true
	}
	return "", false
}

type Service struct {
	db        *db.DB
	publisher realtime.Publisher
	limiter   *ratelimit.Limiter
	clock     clockwork.Clock
}

type Option func(*Service)

// WithLimiter throttles RequestJoin.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(database *db.DB, publisher realtime.Publisher, opts ...Option) (*Service, error) {
	if database == nil {
		return nil, errors.New("membership service requires a database")
	}
	if publisher == nil {
		return nil, errors.New("membership service requires a publisher")
	}
	s := &Service{db: database, publisher: publisher, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type CreateClubInput struct {
	Name        string
	Description string
	JoinCode    string
	CreatorID   string
}

// CreateClub creates a club and makes its creator the active admin.
func (s *Service) CreateClub(ctx context.Context, in CreateClubInput) (models.Club, error) {
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		return models.Club{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case len(normalizeJoinCode(in.JoinCode)) < MinJoinCodeLength:
		return models.Club{}, fmt.Errorf("%w: join code must be at least %d characters", ErrInvalidInput, MinJoinCodeLength)
	case in.CreatorID == "":
		return models.Club{}, authz.ErrUnauthenticated
	}

	hash, err := HashJoinCode(in.JoinCode)
	if err != nil {
		return models.Club{}, fmt.Errorf("hash join code: %w", err)
	}

	now := s.clock.Now()
	var (
		club  models.Club
		admin models.Membership
	)
	err = s.db.RunInTx(ctx, func(txdb *db.DB) error {
		var err error
		club, err = txdb.Queries.CreateClub(ctx, db.CreateClubParams{
			ID:           uuid.NewString(),
			Name:         name,
			Description:  strings.TrimSpace(in.Description),
			JoinCodeHash: hash,
			CreatedBy:    in.CreatorID,
			CreatedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("create club: %w", err)
		}
		admin, err = txdb.Queries.CreateMembership(ctx, db.CreateMembershipParams{
			ID:          uuid.NewString(),
			ClubID:      club.ID,
			UserID:      in.CreatorID,
			Role:        models.RoleAdmin,
			Status:      models.MembershipActive,
			IsActive:    true,
			RequestedAt: now,
			DecidedAt:   &now,
		})
		if err != nil {
			return fmt.Errorf("create admin membership: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("user_id", in.CreatorID).Msg("Failed to create club")
		return models.Club{}, err
	}

	log.Ctx(ctx).Info().Str("club_id", club.ID).Str("user_id", in.CreatorID).Msg("Club created")
	s.publish(ctx, realtime.Event{
		Entity: realtime.EntityClubs,
		Type:   realtime.ChangeInsert,
		New:    &realtime.ClubRow{ID: club.ID, Name: club.Name, Description: club.Description},
	})
	s.publishMembership(ctx, nil, &admin)
	return club, nil
}

type JoinInput struct {
	ClubID   string
	UserID   string
	JoinCode string
	// IP is the client address used for per-IP throttling.
	IP string
}

// RequestJoin files a pending membership request. Users whose earlier request
// was rejected, or who were removed, may ask again.
func (s *Service) RequestJoin(ctx context.Context, in JoinInput) (models.Membership, error) {
	if in.UserID == "" {
		return models.Membership{}, authz.ErrUnauthenticated
	}
	logger := log.Ctx(ctx).With().Str("club_id", in.ClubID).Str("user_id", in.UserID).Logger()

	if s.limiter != nil {
		result := s.limiter.CheckJoin(in.UserID, in.IP)
		if !result.Allowed {
			ratelimit.LogRateLimitExceeded("join", in.UserID, in.IP, result.Reason)
			return models.Membership{}, &RateLimitError{RetryAfter: result.RetryAfter, Reason: result.Reason}
		}
		defer s.limiter.RecordJoin(in.UserID, in.IP)
	}

	club, err := s.db.Queries.GetClub(ctx, in.ClubID)
	if err != nil {
		if db.IsNotFound(err) {
			return models.Membership{}, ErrClubNotFound
		}
		return models.Membership{}, fmt.Errorf("load club: %w", err)
	}

	if !VerifyJoinCode(club.JoinCodeHash, in.JoinCode) {
		if s.limiter != nil && s.limiter.RecordFailedCode(in.UserID) {
			logger.Warn().Msg("Join code lockout triggered")
		}
		return models.Membership{}, ErrInvalidJoinCode
	}
	if s.limiter != nil {
		s.limiter.ResetFailedCodes(in.UserID)
	}

	now := s.clock.Now()
	var previous, created *models.Membership
	err = s.db.RunInTx(ctx, func(txdb *db.DB) error {
		existing, err := txdb.Queries.GetMembership(ctx, db.GetMembershipParams{ClubID: in.ClubID, UserID: in.UserID})
		switch {
		case err == nil:
			if existing.Status == models.MembershipActive || existing.Status == models.MembershipPending {
				return ErrAlreadyMember
			}
			previous = &existing
		case !db.IsNotFound(err):
			return fmt.Errorf("load membership: %w", err)
		}

		m, err := txdb.Queries.CreateMembership(ctx, db.CreateMembershipParams{
			ID:          uuid.NewString(),
			ClubID:      in.ClubID,
			UserID:      in.UserID,
			Role:        models.RoleMember,
			Status:      models.MembershipPending,
			IsActive:    false,
			RequestedAt: now,
		})
		if err != nil {
			return fmt.Errorf("create membership request: %w", err)
		}
		created = &m
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrAlreadyMember) {
			logger.Error().Err(err).Msg("Failed to file join request")
		}
		return models.Membership{}, err
	}

	logger.Info().Msg("Join request filed")
	s.publishMembership(ctx, previous, created)
	return *created, nil
}

// Decide applies an approve, reject or remove action taken by actorID on
// userID's membership. The actor must be an active admin or editor, and only
// admins may remove other admins.
func (s *Service) Decide(ctx context.Context, clubID, actorID, userID string, action Action) (models.Membership, error) {
	logger := log.Ctx(ctx).With().
		Str("club_id", clubID).
		Str("actor_id", actorID).
		Str("user_id", userID).
		Str("action", string(action)).
		Logger()

	now := s.clock.Now()
	var before, after models.Membership
	err := s.db.RunInTx(ctx, func(txdb *db.DB) error {
		actor, err := txdb.Queries.GetMembership(ctx, db.GetMembershipParams{ClubID: clubID, UserID: actorID})
		if err != nil {
			if db.IsNotFound(err) {
				return authz.ErrForbidden
			}
			return fmt.Errorf("load actor membership: %w", err)
		}
		actorState := actor.State()
		if !actorState.Allowed() || !actor.Role.CanManageMembers() {
			return authz.ErrForbidden
		}

		before, err = txdb.Queries.GetMembership(ctx, db.GetMembershipParams{ClubID: clubID, UserID: userID})
		if err != nil {
			if db.IsNotFound(err) {
				return models.ErrMembershipNotFound
			}
			return fmt.Errorf("load membership: %w", err)
		}

		next, err := transition(actor, before, action)
		if err != nil {
			return err
		}
		after, err = txdb.Queries.UpdateMembershipStatus(ctx, db.UpdateMembershipStatusParams{
			ClubID:    clubID,
			UserID:    userID,
			Role:      before.Role,
			Status:    next,
			IsActive:  next == models.MembershipActive,
			DecidedAt: now,
		})
		if err != nil {
			return fmt.Errorf("update membership: %w", err)
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, authz.ErrForbidden), errors.Is(err, models.ErrMembershipNotFound), errors.Is(err, ErrInvalidTransition):
			logger.Warn().Err(err).Msg("Membership decision refused")
		default:
			logger.Error().Err(err).Msg("Failed to apply membership decision")
		}
		return models.Membership{}, err
	}

	logger.Info().Str("status", string(after.Status)).Msg("Membership decision applied")
	s.publishMembership(ctx, &before, &after)
	return after, nil
}

func transition(actor, target models.Membership, action Action) (models.MembershipStatus, error) {
	switch action {
	case ActionApprove:
		if target.Status != models.MembershipPending {
			return "", fmt.Errorf("%w: only pending requests can be approved", ErrInvalidTransition)
		}
		return models.MembershipActive, nil
	case ActionReject:
		if target.Status != models.MembershipPending {
			return "", fmt.Errorf("%w: only pending requests can be rejected", ErrInvalidTransition)
		}
		return models.MembershipRejected, nil
	case ActionRemove:
		if target.Status != models.MembershipActive {
			return "", fmt.Errorf("%w: only active members can be removed", ErrInvalidTransition)
		}
		if target.UserID == actor.UserID {
			return "", fmt.Errorf("%w: members cannot remove themselves", ErrInvalidTransition)
		}
		if target.Role == models.RoleAdmin && actor.Role != models.RoleAdmin {
			return "", authz.ErrForbidden
		}
		return models.MembershipRemoved, nil
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidInput, action)
}

// MembershipStatus reports userID's membership in clubID. A user without a
// row gets models.ErrMembershipNotFound.
func (s *Service) MembershipStatus(ctx context.Context, userID, clubID string) (*models.MembershipState, error) {
	state, err := s.db.Queries.GetMembershipStatus(ctx, db.GetMembershipParams{ClubID: clubID, UserID: userID})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("load membership status: %w", err)
	}
	return &state, nil
}

func (s *Service) ListClubs(ctx context.Context, userID string) ([]models.UserClub, error) {
	return s.db.Queries.ListClubsForUser(ctx, userID)
}

func (s *Service) ListMembers(ctx context.Context, clubID string) ([]models.Membership, error) {
	return s.db.Queries.ListMemberships(ctx, clubID)
}

func (s *Service) ListPending(ctx context.Context, clubID string) ([]models.Membership, error) {
	return s.db.Queries.ListPendingMemberships(ctx, clubID)
}

// ExpireStalePending rejects join requests that have been pending for longer
// than ttl and returns how many were rejected.
func (s *Service) ExpireStalePending(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("%w: ttl must be positive", ErrInvalidInput)
	}
	now := s.clock.Now()
	cutoff := now.Add(-ttl)
	logger := log.Ctx(ctx).With().Str("component", "membership_expiry").Time("cutoff", cutoff).Logger()

	var stale []models.Membership
	err := s.db.RunInTx(ctx, func(txdb *db.DB) error {
		var err error
		stale, err = txdb.Queries.ListStalePendingMemberships(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("list stale requests: %w", err)
		}
		if len(stale) == 0 {
			return nil
		}
		if _, err := txdb.Queries.ExpirePendingMemberships(ctx, db.ExpirePendingMembershipsParams{
			Before:    cutoff,
			DecidedAt: now,
		}); err != nil {
			return fmt.Errorf("expire stale requests: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to expire pending join requests")
		return 0, err
	}

	for i := range stale {
		before := stale[i]
		after := before
		after.Status = models.MembershipRejected
		after.IsActive = false
		decided := now
		after.DecidedAt = &decided
		s.publishMembership(ctx, &before, &after)
	}
	if len(stale) > 0 {
		logger.Info().Int("expired", len(stale)).Msg("Expired pending join requests")
	}
	return len(stale), nil
}

func (s *Service) publishMembership(ctx context.Context, before, after *models.Membership) {
	ev := realtime.Event{Entity: realtime.EntityClubMembers, Type: realtime.ChangeUpdate}
	if before == nil {
		ev.Type = realtime.ChangeInsert
	} else {
		ev.Old = MembershipRow(*before)
	}
	if after != nil {
		ev.New = MembershipRow(*after)
	} else {
		ev.Type = realtime.ChangeDelete
	}
	s.publish(ctx, ev)
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	ev.CommitAt = s.clock.Now()
	s.publisher.Publish(ctx, ev)
}

// MembershipRow converts a stored membership to its change-feed row.
func MembershipRow(m models.Membership) *realtime.MembershipRow {
	return &realtime.MembershipRow{
		ID:       m.ID,
		ClubID:   m.ClubID,
		UserID:   m.UserID,
		Role:     m.Role,
		Status:   m.Status,
		IsActive: m.IsActive,
	}
}
