package teams

import "github.com/codr1/VolleySmart/internal/models"

type TeamSummary struct {
	Size         int     `json:"size"`
	Males        int     `json:"males"`
	Females      int     `json:"females"`
	Diverse      int     `json:"diverse"`
	TotalSkill   float64 `json:"totalSkill"`
	AverageSkill float64 `json:"averageSkill"`
}

type Summary struct {
	TeamA        TeamSummary `json:"teamA"`
	TeamB        TeamSummary `json:"teamB"`
	GenderMetric int         `json:"genderMetric"`
}

func Summarize(assignment Assignment) Summary {
	return Summary{
		TeamA:        summarizeTeam(assignment.TeamA),
		TeamB:        summarizeTeam(assignment.TeamB),
		GenderMetric: GenderMetric(assignment.TeamA, assignment.TeamB),
	}
}

func summarizeTeam(team []models.Player) TeamSummary {
	summary := TeamSummary{Size: len(team)}
	for _, player := range team {
		summary.TotalSkill += player.SkillRating
		switch player.Gender {
		case models.GenderMale:
			summary.Males++
		case models.GenderFemale:
			summary.Females++
		default:
			summary.Diverse++
		}
	}
	if summary.Size > 0 {
		summary.AverageSkill = summary.TotalSkill / float64(summary.Size)
	}
	return summary
}
