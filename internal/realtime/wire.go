package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrUnknownEntity = errors.New("unknown entity")

type envelope struct {
	Entity   Entity          `json:"entity"`
	Type     ChangeType      `json:"type"`
	Old      json.RawMessage `json:"old,omitempty"`
	New      json.RawMessage `json:"new,omitempty"`
	CommitAt time.Time       `json:"commit_at"`
}

var rowFactories = map[Entity]func() Row{
	EntityClubs:       func() Row { return &ClubRow{} },
	EntityClubMembers: func() Row { return &MembershipRow{} },
	EntityMatchDays:   func() Row { return &MatchDayRow{} },
	EntityMatches:     func() Row { return &MatchRow{} },
	EntityMatchTeams:  func() Row { return &MatchTeamRow{} },
}

func Encode(ev Event) ([]byte, error) {
	env := envelope{Entity: ev.Entity, Type: ev.Type, CommitAt: ev.CommitAt}
	var err error
	if ev.Old != nil {
		if env.Old, err = json.Marshal(ev.Old); err != nil {
			return nil, fmt.Errorf("encode old %s row: %w", ev.Entity, err)
		}
	}
	if ev.New != nil {
		if env.New, err = json.Marshal(ev.New); err != nil {
			return nil, fmt.Errorf("encode new %s row: %w", ev.Entity, err)
		}
	}
	return json.Marshal(env)
}

// Decode turns a wire envelope into an Event whose rows have the concrete
// type registered for the entity.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	factory, ok := rowFactories[env.Entity]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEntity, env.Entity)
	}
	switch env.Type {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
	default:
		return Event{}, fmt.Errorf("decode %s event: unknown change type %q", env.Entity, env.Type)
	}

	ev := Event{Entity: env.Entity, Type: env.Type, CommitAt: env.CommitAt}
	var err error
	if ev.Old, err = decodeRow(env.Old, factory); err != nil {
		return Event{}, fmt.Errorf("decode old %s row: %w", env.Entity, err)
	}
	if ev.New, err = decodeRow(env.New, factory); err != nil {
		return Event{}, fmt.Errorf("decode new %s row: %w", env.Entity, err)
	}
	return ev, nil
}

func decodeRow(raw json.RawMessage, factory func() Row) (Row, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	row := factory()
	if err := json.Unmarshal(raw, row); err != nil {
		return nil, err
	}
	return row, nil
}
