// Package teams splits a match-day roster into two volleyball teams balanced
// by position, skill and gender.
package teams

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codr1/VolleySmart/internal/models"
)

// MinRosterSize is the smallest roster callers should hand to Balance.
const MinRosterSize = 6

var (
	ErrRosterTooSmall  = errors.New("roster too small")
	ErrDuplicatePlayer = errors.New("duplicate player in roster")
)

type Assignment struct {
	TeamA []models.Player `json:"teamA"`
	TeamB []models.Player `json:"teamB"`
}

type positionQuota struct {
	position string
	cap      int
}

// distributionOrder is the order in which position buckets feed the
// alternation. Players beyond a bucket's cap fall through to the remaining pool.
var distributionOrder = []positionQuota{
	{position: models.PositionSetter, cap: 4},
	{position: models.PositionOutsideHitter, cap: 4},
	{position: models.PositionMiddleBlocker, cap: 4},
	{position: models.PositionLibero, cap: 2},
	{position: models.PositionOppositeHitter, cap: 2},
}

// ValidateRoster reports the user errors callers surface before balancing.
// Balance itself never validates.
func ValidateRoster(roster []models.Player) error {
	if len(roster) < MinRosterSize {
		return fmt.Errorf("%w: need at least %d players, got %d", ErrRosterTooSmall, MinRosterSize, len(roster))
	}
	seen := make(map[string]struct{}, len(roster))
	for _, player := range roster {
		if _, ok := seen[player.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicatePlayer, player.ID)
		}
		seen[player.ID] = struct{}{}
	}
	return nil
}

// Balance partitions roster into two teams. Every input player ends up in
// exactly one team. The roster slice is not modified.
func Balance(roster []models.Player) Assignment {
	buckets := make(map[string][]models.Player)
	var adHoc []string
	for _, player := range roster {
		position, standard := positionKey(player.PreferredPosition)
		if _, seen := buckets[position]; !seen && !standard {
			adHoc = append(adHoc, position)
		}
		buckets[position] = append(buckets[position], player)
	}
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(i, j int) bool {
			return bucket[i].SkillRating > bucket[j].SkillRating
		})
	}

	teamA := make([]models.Player, 0, len(roster)/2+1)
	teamB := make([]models.Player, 0, len(roster)/2+1)
	var remaining []models.Player

	for _, quota := range distributionOrder {
		for idx, player := range buckets[quota.position] {
			if idx >= quota.cap {
				remaining = append(remaining, player)
				continue
			}
			if idx%2 == 0 {
				teamA = append(teamA, player)
			} else {
				teamB = append(teamB, player)
			}
		}
	}
	for _, position := range adHoc {
		remaining = append(remaining, buckets[position]...)
	}
	for _, player := range remaining {
		if len(teamA) <= len(teamB) {
			teamA = append(teamA, player)
		} else {
			teamB = append(teamB, player)
		}
	}

	improveGenderBalance(teamA, teamB)

	return Assignment{TeamA: teamA, TeamB: teamB}
}

// improveGenderBalance makes a single scan over all cross-team pairs that
// share a position but not a gender, keeping each swap that strictly lowers
// GenderMetric. It stops as soon as the metric is at most 1.
func improveGenderBalance(teamA, teamB []models.Player) {
	current := GenderMetric(teamA, teamB)
	if current <= 1 {
		return
	}

	for i := range teamA {
		for j := range teamB {
			if teamA[i].Gender == teamB[j].Gender || !samePosition(teamA[i], teamB[j]) {
				continue
			}
			teamA[i], teamB[j] = teamB[j], teamA[i]
			next := GenderMetric(teamA, teamB)
			if next >= current {
				teamA[i], teamB[j] = teamB[j], teamA[i]
				continue
			}
			current = next
			if current <= 1 {
				return
			}
		}
	}
}

// GenderMetric is |(malesA - femalesA) - (malesB - femalesB)|. Diverse
// players count toward neither side.
func GenderMetric(teamA, teamB []models.Player) int {
	diff := genderSkew(teamA) - genderSkew(teamB)
	if diff < 0 {
		return -diff
	}
	return diff
}

func genderSkew(team []models.Player) int {
	skew := 0
	for _, player := range team {
		switch player.Gender {
		case models.GenderMale:
			skew++
		case models.GenderFemale:
			skew--
		}
	}
	return skew
}

// positionKey names the bucket a preferred position falls into. Positions
// outside the standard set are matched case-insensitively.
func positionKey(raw string) (string, bool) {
	position, standard := models.NormalizePosition(raw)
	if !standard {
		position = strings.ToLower(position)
	}
	return position, standard
}

func samePosition(a, b models.Player) bool {
	posA, _ := positionKey(a.PreferredPosition)
	posB, _ := positionKey(b.PreferredPosition)
	return posA == posB
}
