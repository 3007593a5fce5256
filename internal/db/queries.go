// internal/db/queries.go
package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/codr1/VolleySmart/internal/models"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// ---- clubs ----

const clubColumns = `id, name, description, join_code_hash, created_by, created_at`

func scanClub(row rowScanner) (models.Club, error) {
	var c models.Club
	err := row.Scan(&c.ID, &c.Name, &c.Description, &c.JoinCodeHash, &c.CreatedBy, &c.CreatedAt)
	return c, err
}

type CreateClubParams struct {
	ID           string
	Name         string
	Description  string
	JoinCodeHash string
	CreatedBy    string
	CreatedAt    time.Time
}

const createClub = `
INSERT INTO clubs (id, name, description, join_code_hash, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateClub(ctx context.Context, arg CreateClubParams) (models.Club, error) {
	if _, err := q.db.ExecContext(ctx, createClub,
		arg.ID, arg.Name, arg.Description, arg.JoinCodeHash, arg.CreatedBy, arg.CreatedAt.UTC(),
	); err != nil {
		return models.Club{}, err
	}
	return q.GetClub(ctx, arg.ID)
}

const getClub = `SELECT ` + clubColumns + ` FROM clubs WHERE id = ?`

func (q *Queries) GetClub(ctx context.Context, id string) (models.Club, error) {
	return scanClub(q.db.QueryRowContext(ctx, getClub, id))
}

// ListClubsForUser returns every club the user has a membership row in,
// whatever its status, so pending and rejected requests show up too.
const listClubsForUser = `
SELECT c.id, c.name, c.description, c.join_code_hash, c.created_by, c.created_at,
       m.role, m.status, m.is_active
FROM clubs c
JOIN club_members m ON m.club_id = c.id
WHERE m.user_id = ?
ORDER BY c.name COLLATE NOCASE, c.id
`

func (q *Queries) ListClubsForUser(ctx context.Context, userID string) ([]models.UserClub, error) {
	rows, err := q.db.QueryContext(ctx, listClubsForUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.UserClub{}
	for rows.Next() {
		var uc models.UserClub
		if err := rows.Scan(
			&uc.ID, &uc.Name, &uc.Description, &uc.JoinCodeHash, &uc.CreatedBy, &uc.CreatedAt,
			&uc.Role, &uc.Status, &uc.IsActive,
		); err != nil {
			return nil, err
		}
		items = append(items, uc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ---- club_members ----

const membershipColumns = `id, club_id, user_id, role, status, is_active, requested_at, decided_at`

func scanMembership(row rowScanner) (models.Membership, error) {
	var (
		m         models.Membership
		decidedAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.ClubID, &m.UserID, &m.Role, &m.Status, &m.IsActive, &m.RequestedAt, &decidedAt)
	m.DecidedAt = timePtr(decidedAt)
	return m, err
}

func (q *Queries) queryMemberships(ctx context.Context, query string, args ...interface{}) ([]models.Membership, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Membership{}
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type CreateMembershipParams struct {
	ID          string
	ClubID      string
	UserID      string
	Role        models.Role
	Status      models.MembershipStatus
	IsActive    bool
	RequestedAt time.Time
	DecidedAt   *time.Time
}

// A user has at most one row per club. Requesting again after a rejection or
// removal reuses the existing row and keeps its id.
const createMembership = `
INSERT INTO club_members (id, club_id, user_id, role, status, is_active, requested_at, decided_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (club_id, user_id) DO UPDATE SET
    role = excluded.role,
    status = excluded.status,
    is_active = excluded.is_active,
    requested_at = excluded.requested_at,
    decided_at = excluded.decided_at
`

func (q *Queries) CreateMembership(ctx context.Context, arg CreateMembershipParams) (models.Membership, error) {
	if _, err := q.db.ExecContext(ctx, createMembership,
		arg.ID, arg.ClubID, arg.UserID, arg.Role, arg.Status, arg.IsActive,
		arg.RequestedAt.UTC(), nullTime(arg.DecidedAt),
	); err != nil {
		return models.Membership{}, err
	}
	return q.GetMembership(ctx, GetMembershipParams{ClubID: arg.ClubID, UserID: arg.UserID})
}

type GetMembershipParams struct {
	ClubID string
	UserID string
}

const getMembership = `SELECT ` + membershipColumns + ` FROM club_members WHERE club_id = ? AND user_id = ?`

func (q *Queries) GetMembership(ctx context.Context, arg GetMembershipParams) (models.Membership, error) {
	return scanMembership(q.db.QueryRowContext(ctx, getMembership, arg.ClubID, arg.UserID))
}

const getMembershipStatus = `SELECT club_id, role, status, is_active FROM club_members WHERE club_id = ? AND user_id = ?`

func (q *Queries) GetMembershipStatus(ctx context.Context, arg GetMembershipParams) (models.MembershipState, error) {
	var s models.MembershipState
	err := q.db.QueryRowContext(ctx, getMembershipStatus, arg.ClubID, arg.UserID).Scan(&s.ClubID, &s.Role, &s.Status, &s.IsActive)
	return s, err
}

const listMemberships = `
SELECT ` + membershipColumns + `
FROM club_members
WHERE club_id = ? AND status = 'active'
ORDER BY CASE role WHEN 'admin' THEN 0 WHEN 'editor' THEN 1 ELSE 2 END, requested_at, id
`

func (q *Queries) ListMemberships(ctx context.Context, clubID string) ([]models.Membership, error) {
	return q.queryMemberships(ctx, listMemberships, clubID)
}

const listPendingMemberships = `
SELECT ` + membershipColumns + `
FROM club_members
WHERE club_id = ? AND status = 'pending'
ORDER BY requested_at, id
`

func (q *Queries) ListPendingMemberships(ctx context.Context, clubID string) ([]models.Membership, error) {
	return q.queryMemberships(ctx, listPendingMemberships, clubID)
}

type UpdateMembershipStatusParams struct {
	ClubID    string
	UserID    string
	Role      models.Role
	Status    models.MembershipStatus
	IsActive  bool
	DecidedAt time.Time
}

const updateMembershipStatus = `
UPDATE club_members
SET role = ?, status = ?, is_active = ?, decided_at = ?
WHERE club_id = ? AND user_id = ?
`

func (q *Queries) UpdateMembershipStatus(ctx context.Context, arg UpdateMembershipStatusParams) (models.Membership, error) {
	res, err := q.db.ExecContext(ctx, updateMembershipStatus,
		arg.Role, arg.Status, arg.IsActive, arg.DecidedAt.UTC(), arg.ClubID, arg.UserID,
	)
	if err != nil {
		return models.Membership{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Membership{}, sql.ErrNoRows
	}
	return q.GetMembership(ctx, GetMembershipParams{ClubID: arg.ClubID, UserID: arg.UserID})
}

const listStalePendingMemberships = `
SELECT ` + membershipColumns + `
FROM club_members
WHERE status = 'pending' AND requested_at < ?
ORDER BY requested_at, id
`

func (q *Queries) ListStalePendingMemberships(ctx context.Context, before time.Time) ([]models.Membership, error) {
	return q.queryMemberships(ctx, listStalePendingMemberships, before.UTC())
}

type ExpirePendingMembershipsParams struct {
	Before    time.Time
	DecidedAt time.Time
}

const expirePendingMemberships = `
UPDATE club_members
SET status = 'rejected', is_active = 0, decided_at = ?
WHERE status = 'pending' AND requested_at < ?
`

func (q *Queries) ExpirePendingMemberships(ctx context.Context, arg ExpirePendingMembershipsParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, expirePendingMemberships, arg.DecidedAt.UTC(), arg.Before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- players ----

const playerColumns = `id, name, gender, preferred_position, skill_rating`

func scanPlayer(row rowScanner) (models.Player, error) {
	var p models.Player
	err := row.Scan(&p.ID, &p.Name, &p.Gender, &p.PreferredPosition, &p.SkillRating)
	return p, err
}

func (q *Queries) queryPlayers(ctx context.Context, query string, args ...interface{}) ([]models.Player, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Player{}
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type UpsertPlayerParams struct {
	ClubID string
	Player models.Player
	Now    time.Time
}

const upsertPlayer = `
INSERT INTO players (id, club_id, name, gender, preferred_position, skill_rating, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    gender = excluded.gender,
    preferred_position = excluded.preferred_position,
    skill_rating = excluded.skill_rating,
    updated_at = excluded.updated_at
WHERE players.club_id = excluded.club_id
`

// UpsertPlayer creates or updates a roster entry. A player id that already
// belongs to another club is left untouched and reported as sql.ErrNoRows.
func (q *Queries) UpsertPlayer(ctx context.Context, arg UpsertPlayerParams) (models.Player, error) {
	p := arg.Player
	res, err := q.db.ExecContext(ctx, upsertPlayer,
		p.ID, arg.ClubID, p.Name, p.Gender, p.PreferredPosition, p.SkillRating, arg.Now.UTC(),
	)
	if err != nil {
		return models.Player{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Player{}, sql.ErrNoRows
	}
	return scanPlayer(q.db.QueryRowContext(ctx, `SELECT `+playerColumns+` FROM players WHERE id = ?`, p.ID))
}

const listPlayers = `SELECT ` + playerColumns + ` FROM players WHERE club_id = ? ORDER BY name COLLATE NOCASE, id`

func (q *Queries) ListPlayers(ctx context.Context, clubID string) ([]models.Player, error) {
	return q.queryPlayers(ctx, listPlayers, clubID)
}

// ListPlayersByIDs returns the club's players among ids, in the order the ids
// were given. Unknown ids are skipped.
func (q *Queries) ListPlayersByIDs(ctx context.Context, clubID string, ids []string) ([]models.Player, error) {
	if len(ids) == 0 {
		return []models.Player{}, nil
	}
	query := `SELECT ` + playerColumns + ` FROM players WHERE club_id = ? AND id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, clubID)
	for _, id := range ids {
		args = append(args, id)
	}
	found, err := q.queryPlayers(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Player, len(found))
	for _, p := range found {
		byID[p.ID] = p
	}
	ordered := make([]models.Player, 0, len(found))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered, nil
}

// ---- match days ----

const matchDayColumns = `id, club_id, played_on, notes, created_at`

func scanMatchDay(row rowScanner) (models.MatchDay, error) {
	var d models.MatchDay
	err := row.Scan(&d.ID, &d.ClubID, &d.PlayedOn, &d.Notes, &d.CreatedAt)
	return d, err
}

type CreateMatchDayParams struct {
	ID        string
	ClubID    string
	PlayedOn  time.Time
	Notes     string
	CreatedAt time.Time
}

const createMatchDay = `
INSERT INTO match_days (id, club_id, played_on, notes, created_at)
VALUES (?, ?, ?, ?, ?)
`

func (q *Queries) CreateMatchDay(ctx context.Context, arg CreateMatchDayParams) (models.MatchDay, error) {
	if _, err := q.db.ExecContext(ctx, createMatchDay,
		arg.ID, arg.ClubID, arg.PlayedOn.UTC(), arg.Notes, arg.CreatedAt.UTC(),
	); err != nil {
		return models.MatchDay{}, err
	}
	return q.GetMatchDay(ctx, arg.ID)
}

func (q *Queries) GetMatchDay(ctx context.Context, id string) (models.MatchDay, error) {
	return scanMatchDay(q.db.QueryRowContext(ctx, `SELECT `+matchDayColumns+` FROM match_days WHERE id = ?`, id))
}

const listMatchDays = `SELECT ` + matchDayColumns + ` FROM match_days WHERE club_id = ? ORDER BY played_on DESC, created_at DESC`

func (q *Queries) ListMatchDays(ctx context.Context, clubID string) ([]models.MatchDay, error) {
	rows, err := q.db.QueryContext(ctx, listMatchDays, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.MatchDay{}
	for rows.Next() {
		d, err := scanMatchDay(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// ---- matches ----

const matchColumns = `id, match_day_id, club_id, team_a_score, team_b_score, scored_at, created_at`

func scanMatch(row rowScanner) (models.Match, error) {
	var (
		m        models.Match
		scoredAt sql.NullTime
	)
	err := row.Scan(&m.ID, &m.MatchDayID, &m.ClubID, &m.TeamAScore, &m.TeamBScore, &scoredAt, &m.CreatedAt)
	m.ScoredAt = timePtr(scoredAt)
	return m, err
}

type CreateMatchParams struct {
	ID         string
	MatchDayID string
	ClubID     string
	CreatedAt  time.Time
}

func (q *Queries) CreateMatch(ctx context.Context, arg CreateMatchParams) (models.Match, error) {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO matches (id, match_day_id, club_id, created_at) VALUES (?, ?, ?, ?)`,
		arg.ID, arg.MatchDayID, arg.ClubID, arg.CreatedAt.UTC(),
	); err != nil {
		return models.Match{}, err
	}
	return q.GetMatch(ctx, arg.ID)
}

func (q *Queries) GetMatch(ctx context.Context, id string) (models.Match, error) {
	return scanMatch(q.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
}

const listMatches = `SELECT ` + matchColumns + ` FROM matches WHERE match_day_id = ? AND club_id = ? ORDER BY created_at, id`

func (q *Queries) ListMatches(ctx context.Context, clubID, matchDayID string) ([]models.Match, error) {
	rows, err := q.db.QueryContext(ctx, listMatches, matchDayID, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type RecordScoreParams struct {
	ID         string
	ClubID     string
	TeamAScore int
	TeamBScore int
	ScoredAt   time.Time
}

const recordScore = `
UPDATE matches
SET team_a_score = ?, team_b_score = ?, scored_at = ?
WHERE id = ? AND club_id = ?
`

func (q *Queries) RecordScore(ctx context.Context, arg RecordScoreParams) (models.Match, error) {
	res, err := q.db.ExecContext(ctx, recordScore, arg.TeamAScore, arg.TeamBScore, arg.ScoredAt.UTC(), arg.ID, arg.ClubID)
	if err != nil {
		return models.Match{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.Match{}, sql.ErrNoRows
	}
	return q.GetMatch(ctx, arg.ID)
}

// ---- match teams ----

type SaveMatchTeamsParams struct {
	MatchDayID string
	ClubID     string
	TeamA      []string
	TeamB      []string
}

// SaveMatchTeams replaces the stored teams of a match day. Callers run it in
// a transaction.
func (q *Queries) SaveMatchTeams(ctx context.Context, arg SaveMatchTeamsParams) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM match_teams WHERE match_day_id = ?`, arg.MatchDayID); err != nil {
		return err
	}
	stmt, err := q.db.PrepareContext(ctx,
		`INSERT INTO match_teams (match_day_id, club_id, player_id, team, position) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for team, ids := range map[string][]string{"A": arg.TeamA, "B": arg.TeamB} {
		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, arg.MatchDayID, arg.ClubID, id, team, i); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListMatchTeams returns the player ids of both teams in assignment order.
func (q *Queries) ListMatchTeams(ctx context.Context, matchDayID string) (teamA, teamB []string, err error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT player_id, team FROM match_teams WHERE match_day_id = ? ORDER BY team, position`, matchDayID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	teamA, teamB = []string{}, []string{}
	for rows.Next() {
		var playerID, team string
		if err := rows.Scan(&playerID, &team); err != nil {
			return nil, nil, err
		}
		if team == "A" {
			teamA = append(teamA, playerID)
		} else {
			teamB = append(teamB, playerID)
		}
	}
	return teamA, teamB, rows.Err()
}

// ---- leaderboard ----

// Only scored matches are returned. Every match on a day is played by that
// day's saved teams.
const listScoredParticipations = `
SELECT m.id, p.id, p.name, mt.team, m.team_a_score, m.team_b_score
FROM match_teams mt
JOIN players p ON p.id = mt.player_id
JOIN matches m ON m.match_day_id = mt.match_day_id AND m.scored_at IS NOT NULL
WHERE mt.club_id = ?
ORDER BY m.scored_at, m.id, mt.team, mt.position
`

type ScoredParticipationRow struct {
	MatchID    string
	PlayerID   string
	Name       string
	Team       string
	TeamAScore int
	TeamBScore int
}

func (q *Queries) ListScoredParticipations(ctx context.Context, clubID string) ([]ScoredParticipationRow, error) {
	rows, err := q.db.QueryContext(ctx, listScoredParticipations, clubID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []ScoredParticipationRow{}
	for rows.Next() {
		var r ScoredParticipationRow
		if err := rows.Scan(&r.MatchID, &r.PlayerID, &r.Name, &r.Team, &r.TeamAScore, &r.TeamBScore); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// IsNotFound reports whether err means a queried row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
