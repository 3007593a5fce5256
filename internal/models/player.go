package models

import (
	"fmt"
	"strings"
)

type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderDiverse Gender = "diverse"
)

// ParseGender accepts the stored gender values plus a few common aliases.
// Anything unrecognised is treated as diverse so it never counts toward the
// male/female balance.
func ParseGender(raw string) Gender {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m", "man":
		return GenderMale
	case "female", "f", "woman":
		return GenderFemale
	default:
		return GenderDiverse
	}
}

const (
	PositionSetter         = "Setter"
	PositionOutsideHitter  = "Outside Hitter"
	PositionMiddleBlocker  = "Middle Blocker"
	PositionOppositeHitter = "Opposite Hitter"
	PositionLibero         = "Libero"
)

var positionAliases = map[string]string{
	"setter":          PositionSetter,
	"outside hitter":  PositionOutsideHitter,
	"outside":         PositionOutsideHitter,
	"middle blocker":  PositionMiddleBlocker,
	"middle":          PositionMiddleBlocker,
	"opposite hitter": PositionOppositeHitter,
	"opposite":        PositionOppositeHitter,
	"libero":          PositionLibero,
}

// NormalizePosition maps a free-form position to one of the standard
// positions. The second return value is false for non-standard positions, in
// which case the trimmed input is returned unchanged.
func NormalizePosition(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if canonical, ok := positionAliases[strings.ToLower(trimmed)]; ok {
		return canonical, true
	}
	return trimmed, false
}

// Player is a roster entry fed into team balancing.
type Player struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Gender            Gender  `json:"gender"`
	PreferredPosition string  `json:"preferredPosition"`
	SkillRating       float64 `json:"skillRating"`
}

func (p Player) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("player id is required")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("player %s: name is required", p.ID)
	}
	if p.SkillRating < 0 {
		return fmt.Errorf("player %s: skill rating must not be negative", p.ID)
	}
	return nil
}
