// Package matchday tracks match days for a club: the roster, the generated
// teams, the matches played and the resulting leaderboard.
package matchday

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/db"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/realtime"
	"github.com/codr1/VolleySmart/internal/standings"
	"github.com/codr1/VolleySmart/internal/teams"
)

const playedOnLayout = "2006-01-02"

var (
	ErrMatchDayNotFound = errors.New("match day not found")
	ErrMatchNotFound    = errors.New("match not found")
	ErrPlayerNotFound   = errors.New("player not found")
	ErrInvalidScore     = errors.New("invalid score")
	ErrNoTeams          = errors.New("teams have not been generated for this match day")
	ErrInvalidInput     = errors.New("invalid input")
)

type Service struct {
	db        *db.DB
	publisher realtime.Publisher
	cache     *querycache.Cache
	clock     clockwork.Clock
}

type Option func(*Service)

func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func NewService(database *db.DB, publisher realtime.Publisher, cache *querycache.Cache, opts ...Option) (*Service, error) {
	switch {
	case database == nil:
		return nil, errors.New("match day service requires a database")
	case publisher == nil:
		return nil, errors.New("match day service requires a publisher")
	case cache == nil:
		return nil, errors.New("match day service requires a query cache")
	}
	s := &Service{db: database, publisher: publisher, cache: cache, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SavePlayer creates or updates a roster entry. Standard positions are stored
// in their canonical spelling.
func (s *Service) SavePlayer(ctx context.Context, clubID string, p models.Player) (models.Player, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Gender = models.ParseGender(string(p.Gender))
	p.PreferredPosition, _ = models.NormalizePosition(p.PreferredPosition)
	if err := p.Validate(); err != nil {
		return models.Player{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	saved, err := s.db.Queries.UpsertPlayer(ctx, db.UpsertPlayerParams{ClubID: clubID, Player: p, Now: s.clock.Now()})
	if err != nil {
		if db.IsNotFound(err) {
			return models.Player{}, fmt.Errorf("%w: %s belongs to another club", ErrInvalidInput, p.ID)
		}
		log.Ctx(ctx).Error().Err(err).Str("club_id", clubID).Str("player_id", p.ID).Msg("Failed to save player")
		return models.Player{}, fmt.Errorf("save player: %w", err)
	}
	return saved, nil
}

func (s *Service) ListPlayers(ctx context.Context, clubID string) ([]models.Player, error) {
	return s.db.Queries.ListPlayers(ctx, clubID)
}

func (s *Service) CreateMatchDay(ctx context.Context, clubID string, playedOn time.Time, notes string) (models.MatchDay, error) {
	if playedOn.IsZero() {
		return models.MatchDay{}, fmt.Errorf("%w: played on date is required", ErrInvalidInput)
	}
	day, err := s.db.Queries.CreateMatchDay(ctx, db.CreateMatchDayParams{
		ID:        uuid.NewString(),
		ClubID:    clubID,
		PlayedOn:  playedOn,
		Notes:     strings.TrimSpace(notes),
		CreatedAt: s.clock.Now(),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("club_id", clubID).Msg("Failed to create match day")
		return models.MatchDay{}, fmt.Errorf("create match day: %w", err)
	}

	log.Ctx(ctx).Info().Str("club_id", clubID).Str("match_day_id", day.ID).Msg("Match day created")
	s.publish(ctx, realtime.Event{
		Entity: realtime.EntityMatchDays,
		Type:   realtime.ChangeInsert,
		New:    &realtime.MatchDayRow{ID: day.ID, ClubID: day.ClubID, PlayedOn: day.PlayedOn.Format(playedOnLayout)},
	})
	return day, nil
}

func (s *Service) ListMatchDays(ctx context.Context, clubID string) ([]models.MatchDay, error) {
	return querycache.Fetch(ctx, s.cache, querycache.NewKey(querycache.FamilyMatchDays, clubID),
		func(ctx context.Context) ([]models.MatchDay, error) {
			return s.db.Queries.ListMatchDays(ctx, clubID)
		})
}

func (s *Service) matchDay(ctx context.Context, clubID, matchDayID string) (models.MatchDay, error) {
	day, err := s.db.Queries.GetMatchDay(ctx, matchDayID)
	if err != nil {
		if db.IsNotFound(err) {
			return models.MatchDay{}, ErrMatchDayNotFound
		}
		return models.MatchDay{}, fmt.Errorf("load match day: %w", err)
	}
	if day.ClubID != clubID {
		return models.MatchDay{}, ErrMatchDayNotFound
	}
	return day, nil
}

// GenerateTeams balances the given roster and stores the result as the match
// day's teams, replacing any earlier assignment.
func (s *Service) GenerateTeams(ctx context.Context, clubID, matchDayID string, playerIDs []string) (teams.Assignment, error) {
	logger := log.Ctx(ctx).With().Str("club_id", clubID).Str("match_day_id", matchDayID).Logger()

	if _, err := s.matchDay(ctx, clubID, matchDayID); err != nil {
		return teams.Assignment{}, err
	}

	seen := make(map[string]struct{}, len(playerIDs))
	for _, id := range playerIDs {
		if _, ok := seen[id]; ok {
			return teams.Assignment{}, fmt.Errorf("%w: %s", teams.ErrDuplicatePlayer, id)
		}
		seen[id] = struct{}{}
	}

	roster, err := s.db.Queries.ListPlayersByIDs(ctx, clubID, playerIDs)
	if err != nil {
		return teams.Assignment{}, fmt.Errorf("load roster: %w", err)
	}
	if len(roster) != len(playerIDs) {
		return teams.Assignment{}, fmt.Errorf("%w: %d of %d players are not on the club roster",
			ErrPlayerNotFound, len(playerIDs)-len(roster), len(playerIDs))
	}
	if err := teams.ValidateRoster(roster); err != nil {
		return teams.Assignment{}, err
	}

	assignment := teams.Balance(roster)
	row := &realtime.MatchTeamRow{
		MatchDayID: matchDayID,
		ClubID:     clubID,
		TeamA:      playerIDsOf(assignment.TeamA),
		TeamB:      playerIDsOf(assignment.TeamB),
	}

	var previous *realtime.MatchTeamRow
	err = s.db.RunInTx(ctx, func(txdb *db.DB) error {
		oldA, oldB, err := txdb.Queries.ListMatchTeams(ctx, matchDayID)
		if err != nil {
			return fmt.Errorf("load previous teams: %w", err)
		}
		if len(oldA)+len(oldB) > 0 {
			previous = &realtime.MatchTeamRow{MatchDayID: matchDayID, ClubID: clubID, TeamA: oldA, TeamB: oldB}
		}
		return txdb.Queries.SaveMatchTeams(ctx, db.SaveMatchTeamsParams{
			MatchDayID: matchDayID,
			ClubID:     clubID,
			TeamA:      row.TeamA,
			TeamB:      row.TeamB,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save generated teams")
		return teams.Assignment{}, fmt.Errorf("save teams: %w", err)
	}

	summary := teams.Summarize(assignment)
	logger.Info().
		Int("team_a", summary.TeamA.Size).
		Int("team_b", summary.TeamB.Size).
		Int("gender_metric", summary.GenderMetric).
		Msg("Teams generated")

	ev := realtime.Event{Entity: realtime.EntityMatchTeams, Type: realtime.ChangeInsert, New: row}
	if previous != nil {
		ev.Type = realtime.ChangeUpdate
		ev.Old = previous
	}
	s.publish(ctx, ev)
	return assignment, nil
}

// Teams returns the stored teams of a match day with full player records.
func (s *Service) Teams(ctx context.Context, clubID, matchDayID string) (teams.Assignment, error) {
	key := querycache.NewKey(querycache.FamilyTeams, clubID, matchDayID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) (teams.Assignment, error) {
		if _, err := s.matchDay(ctx, clubID, matchDayID); err != nil {
			return teams.Assignment{}, err
		}
		idsA, idsB, err := s.db.Queries.ListMatchTeams(ctx, matchDayID)
		if err != nil {
			return teams.Assignment{}, fmt.Errorf("load teams: %w", err)
		}
		if len(idsA)+len(idsB) == 0 {
			return teams.Assignment{}, ErrNoTeams
		}
		teamA, err := s.db.Queries.ListPlayersByIDs(ctx, clubID, idsA)
		if err != nil {
			return teams.Assignment{}, fmt.Errorf("load team A: %w", err)
		}
		teamB, err := s.db.Queries.ListPlayersByIDs(ctx, clubID, idsB)
		if err != nil {
			return teams.Assignment{}, fmt.Errorf("load team B: %w", err)
		}
		return teams.Assignment{TeamA: teamA, TeamB: teamB}, nil
	})
}

// CreateMatch opens a new game on a match day that already has teams.
func (s *Service) CreateMatch(ctx context.Context, clubID, matchDayID string) (models.Match, error) {
	if _, err := s.matchDay(ctx, clubID, matchDayID); err != nil {
		return models.Match{}, err
	}
	idsA, idsB, err := s.db.Queries.ListMatchTeams(ctx, matchDayID)
	if err != nil {
		return models.Match{}, fmt.Errorf("load teams: %w", err)
	}
	if len(idsA)+len(idsB) == 0 {
		return models.Match{}, ErrNoTeams
	}

	match, err := s.db.Queries.CreateMatch(ctx, db.CreateMatchParams{
		ID:         uuid.NewString(),
		MatchDayID: matchDayID,
		ClubID:     clubID,
		CreatedAt:  s.clock.Now(),
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("club_id", clubID).Str("match_day_id", matchDayID).Msg("Failed to create match")
		return models.Match{}, fmt.Errorf("create match: %w", err)
	}

	s.publish(ctx, realtime.Event{Entity: realtime.EntityMatches, Type: realtime.ChangeInsert, New: matchRow(match)})
	return match, nil
}

// RecordScore sets the final score of a match. Scores can be corrected by
// recording again.
func (s *Service) RecordScore(ctx context.Context, clubID, matchID string, teamAScore, teamBScore int) (models.Match, error) {
	if teamAScore < 0 || teamBScore < 0 {
		return models.Match{}, fmt.Errorf("%w: scores must not be negative", ErrInvalidScore)
	}

	var before, after models.Match
	err := s.db.RunInTx(ctx, func(txdb *db.DB) error {
		var err error
		before, err = txdb.Queries.GetMatch(ctx, matchID)
		if err != nil {
			if db.IsNotFound(err) {
				return ErrMatchNotFound
			}
			return fmt.Errorf("load match: %w", err)
		}
		if before.ClubID != clubID {
			return ErrMatchNotFound
		}
		after, err = txdb.Queries.RecordScore(ctx, db.RecordScoreParams{
			ID:         matchID,
			ClubID:     clubID,
			TeamAScore: teamAScore,
			TeamBScore: teamBScore,
			ScoredAt:   s.clock.Now(),
		})
		if err != nil {
			return fmt.Errorf("record score: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrMatchNotFound) {
			log.Ctx(ctx).Error().Err(err).Str("club_id", clubID).Str("match_id", matchID).Msg("Failed to record score")
		}
		return models.Match{}, err
	}

	log.Ctx(ctx).Info().
		Str("club_id", clubID).
		Str("match_id", matchID).
		Int("team_a_score", teamAScore).
		Int("team_b_score", teamBScore).
		Msg("Score recorded")
	s.publish(ctx, realtime.Event{
		Entity: realtime.EntityMatches,
		Type:   realtime.ChangeUpdate,
		Old:    matchRow(before),
		New:    matchRow(after),
	})
	return after, nil
}

// Scoreboard lists the matches of one match day in the order they were created.
func (s *Service) Scoreboard(ctx context.Context, clubID, matchDayID string) ([]models.Match, error) {
	key := querycache.NewKey(querycache.FamilyScoreboard, clubID, matchDayID)
	return querycache.Fetch(ctx, s.cache, key, func(ctx context.Context) ([]models.Match, error) {
		if _, err := s.matchDay(ctx, clubID, matchDayID); err != nil {
			return nil, err
		}
		return s.db.Queries.ListMatches(ctx, clubID, matchDayID)
	})
}

func (s *Service) Leaderboard(ctx context.Context, clubID string) ([]models.LeaderboardEntry, error) {
	return querycache.Fetch(ctx, s.cache, querycache.NewKey(querycache.FamilyLeaderboard, clubID),
		func(ctx context.Context) ([]models.LeaderboardEntry, error) {
			rows, err := s.db.Queries.ListScoredParticipations(ctx, clubID)
			if err != nil {
				return nil, fmt.Errorf("list scored participations: %w", err)
			}
			participations := make([]standings.Participation, 0, len(rows))
			for _, row := range rows {
				participations = append(participations, standings.Participation(row))
			}
			return standings.Calculate(participations)
		})
}

func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	ev.CommitAt = s.clock.Now()
	s.publisher.Publish(ctx, ev)
}

func matchRow(m models.Match) *realtime.MatchRow {
	return &realtime.MatchRow{
		ID:         m.ID,
		MatchDayID: m.MatchDayID,
		ClubID:     m.ClubID,
		TeamAScore: m.TeamAScore,
		TeamBScore: m.TeamBScore,
	}
}

func playerIDsOf(players []models.Player) []string {
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.ID
	}
	return ids
}
