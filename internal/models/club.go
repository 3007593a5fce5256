package models

import "time"

type Club struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	JoinCodeHash string    `json:"-"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserClub is a club as seen from one member's club list.
type UserClub struct {
	Club
	Role     Role             `json:"role"`
	Status   MembershipStatus `json:"status"`
	IsActive bool             `json:"isActive"`
}

type MatchDay struct {
	ID        string    `json:"id"`
	ClubID    string    `json:"clubId"`
	PlayedOn  time.Time `json:"playedOn"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Match is one game on a match day between the two generated teams. ScoredAt
// is nil until a score has been recorded.
type Match struct {
	ID         string     `json:"id"`
	MatchDayID string     `json:"matchDayId"`
	ClubID     string     `json:"clubId"`
	TeamAScore int        `json:"teamAScore"`
	TeamBScore int        `json:"teamBScore"`
	ScoredAt   *time.Time `json:"scoredAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// LeaderboardEntry aggregates a player's results over every scored match.
type LeaderboardEntry struct {
	PlayerID          string `json:"playerId"`
	Name              string `json:"name"`
	Played            int    `json:"played"`
	Wins              int    `json:"wins"`
	Losses            int    `json:"losses"`
	PointsFor         int    `json:"pointsFor"`
	PointsAgainst     int    `json:"pointsAgainst"`
	PointDifferential int    `json:"pointDifferential"`
}
