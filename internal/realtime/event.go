// Package realtime carries row-level change notifications for club-scoped
// tables from the store to subscribers.
package realtime

import (
	"time"

	"github.com/codr1/VolleySmart/internal/models"
)

type Entity string

const (
	EntityClubs       Entity = "clubs"
	EntityClubMembers Entity = "club_members"
	EntityMatchDays   Entity = "match_days"
	EntityMatches     Entity = "matches"
	EntityMatchTeams  Entity = "match_teams"
)

// ClubScopedEntities are the tables a club view listens to.
var ClubScopedEntities = []Entity{
	EntityClubMembers,
	EntityMatchDays,
	EntityMatches,
	EntityMatchTeams,
}

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Row is one variant of the typed row union. The concrete type is fixed by
// the event's Entity.
type Row interface {
	Entity() Entity
	Club() string
}

type MembershipRow struct {
	ID       string                  `json:"id"`
	ClubID   string                  `json:"club_id"`
	UserID   string                  `json:"user_id"`
	Role     models.Role             `json:"role"`
	Status   models.MembershipStatus `json:"status"`
	IsActive bool                    `json:"is_active"`
}

func (*MembershipRow) Entity() Entity { return EntityClubMembers }
func (r *MembershipRow) Club() string { return r.ClubID }

type ClubRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (*ClubRow) Entity() Entity { return EntityClubs }
func (r *ClubRow) Club() string { return r.ID }

type MatchDayRow struct {
	ID       string `json:"id"`
	ClubID   string `json:"club_id"`
	PlayedOn string `json:"played_on"`
}

func (*MatchDayRow) Entity() Entity { return EntityMatchDays }
func (r *MatchDayRow) Club() string { return r.ClubID }

type MatchRow struct {
	ID         string `json:"id"`
	MatchDayID string `json:"match_day_id"`
	ClubID     string `json:"club_id"`
	TeamAScore int    `json:"team_a_score"`
	TeamBScore int    `json:"team_b_score"`
}

func (*MatchRow) Entity() Entity { return EntityMatches }
func (r *MatchRow) Club() string { return r.ClubID }

type MatchTeamRow struct {
	MatchDayID string   `json:"match_day_id"`
	ClubID     string   `json:"club_id"`
	TeamA      []string `json:"team_a"`
	TeamB      []string `json:"team_b"`
}

func (*MatchTeamRow) Entity() Entity { return EntityMatchTeams }
func (r *MatchTeamRow) Club() string { return r.ClubID }

// Event is a single committed change. Old is nil for inserts and New is nil
// for deletes.
type Event struct {
	Entity   Entity
	Type     ChangeType
	Old      Row
	New      Row
	CommitAt time.Time
}

// ClubID returns the club the changed row belongs to.
func (e Event) ClubID() string {
	if e.New != nil {
		return e.New.Club()
	}
	if e.Old != nil {
		return e.Old.Club()
	}
	return ""
}

// UserID returns the member the row refers to, or "" for entities that are
// not owned by a single user.
func (e Event) UserID() string {
	oldRow, newRow := e.Memberships()
	if newRow != nil {
		return newRow.UserID
	}
	if oldRow != nil {
		return oldRow.UserID
	}
	return ""
}

// Memberships returns the typed rows of a club_members event.
func (e Event) Memberships() (oldRow, newRow *MembershipRow) {
	if e.Entity != EntityClubMembers {
		return nil, nil
	}
	oldRow, _ = e.Old.(*MembershipRow)
	newRow, _ = e.New.(*MembershipRow)
	return oldRow, newRow
}
