package standings

import (
	"fmt"
	"sort"
	"strings"

	"github.com/codr1/VolleySmart/internal/models"
)

// Participation is one player's appearance in one scored match. Team is the
// side the player was assigned to on that match day.
type Participation struct {
	MatchID    string
	PlayerID   string
	Name       string
	Team       string
	TeamAScore int
	TeamBScore int
}

// Calculate folds scored participations into a per-player leaderboard. A level
// score counts as played without a win or a loss. Players are ordered by wins,
// then point differential, then name.
func Calculate(rows []Participation) ([]models.LeaderboardEntry, error) {
	players := make(map[string]*models.LeaderboardEntry)
	for _, row := range rows {
		forScore, againstScore, err := resolveScore(row)
		if err != nil {
			return nil, err
		}

		entry, ok := players[row.PlayerID]
		if !ok {
			entry = &models.LeaderboardEntry{PlayerID: row.PlayerID, Name: row.Name}
			players[row.PlayerID] = entry
		}

		entry.Played++
		entry.PointsFor += forScore
		entry.PointsAgainst += againstScore
		entry.PointDifferential = entry.PointsFor - entry.PointsAgainst
		switch {
		case forScore > againstScore:
			entry.Wins++
		case forScore < againstScore:
			entry.Losses++
		}
	}

	ordered := make([]*models.LeaderboardEntry, 0, len(players))
	for _, entry := range players {
		ordered = append(ordered, entry)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Wins != ordered[j].Wins {
			return ordered[i].Wins > ordered[j].Wins
		}
		return lessByName(ordered[i], ordered[j])
	})

	sortByTiebreakers(ordered)

	board := make([]models.LeaderboardEntry, 0, len(ordered))
	for _, entry := range ordered {
		board = append(board, *entry)
	}
	return board, nil
}

func resolveScore(row Participation) (int, int, error) {
	switch row.Team {
	case "A":
		return row.TeamAScore, row.TeamBScore, nil
	case "B":
		return row.TeamBScore, row.TeamAScore, nil
	default:
		return 0, 0, fmt.Errorf("match %s: player %s has unknown team %q", row.MatchID, row.PlayerID, row.Team)
	}
}

// sortByTiebreakers reorders each run of equal wins by point differential.
func sortByTiebreakers(ordered []*models.LeaderboardEntry) {
	if len(ordered) < 2 {
		return
	}

	start := 0
	for start < len(ordered) {
		end := start + 1
		for end < len(ordered) && ordered[end].Wins == ordered[start].Wins {
			end++
		}

		if end-start > 1 {
			group := ordered[start:end]
			sort.SliceStable(group, func(i, j int) bool {
				if group[i].PointDifferential != group[j].PointDifferential {
					return group[i].PointDifferential > group[j].PointDifferential
				}
				if group[i].Played != group[j].Played {
					return group[i].Played > group[j].Played
				}
				return lessByName(group[i], group[j])
			})
		}

		start = end
	}
}

func lessByName(a, b *models.LeaderboardEntry) bool {
	an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.PlayerID < b.PlayerID
}
