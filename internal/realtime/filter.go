package realtime

import (
	"slices"
	"strings"
)

// Filter scopes a subscription. Empty fields match everything.
type Filter struct {
	Entities []Entity
	UserID   string
	ClubID   string
}

func (f Filter) Match(ev Event) bool {
	if len(f.Entities) > 0 && !slices.Contains(f.Entities, ev.Entity) {
		return false
	}
	if f.UserID != "" && ev.UserID() != f.UserID {
		return false
	}
	if f.ClubID != "" && ev.ClubID() != f.ClubID {
		return false
	}
	return true
}

// ParseEntities reads a comma separated entity list such as the one sent in
// the stream endpoint's query string.
func ParseEntities(raw string) ([]Entity, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var entities []Entity
	for _, part := range strings.Split(raw, ",") {
		entity := Entity(strings.TrimSpace(part))
		if _, ok := rowFactories[entity]; !ok {
			return nil, ErrUnknownEntity
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

func joinEntities(entities []Entity) string {
	parts := make([]string, 0, len(entities))
	for _, entity := range entities {
		parts = append(parts, string(entity))
	}
	return strings.Join(parts, ",")
}
