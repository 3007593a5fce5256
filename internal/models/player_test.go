package models

import "testing"

func TestNormalizePosition(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		want     string
		standard bool
	}{
		{name: "setter", value: "Setter", want: PositionSetter, standard: true},
		{name: "lowercase_outside", value: "outside hitter", want: PositionOutsideHitter, standard: true},
		{name: "opposite_short", value: "Opposite", want: PositionOppositeHitter, standard: true},
		{name: "padded_libero", value: "  Libero ", want: PositionLibero, standard: true},
		{name: "custom", value: " Universal ", want: "Universal", standard: false},
		{name: "empty", value: "", want: "", standard: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, standard := NormalizePosition(test.value)
			if got != test.want || standard != test.standard {
				t.Fatalf("NormalizePosition(%q) = (%q, %t), want (%q, %t)", test.value, got, standard, test.want, test.standard)
			}
		})
	}
}

func TestParseGender(t *testing.T) {
	tests := map[string]Gender{
		"male":    GenderMale,
		"F":       GenderFemale,
		" woman ": GenderFemale,
		"other":   GenderDiverse,
		"":        GenderDiverse,
	}
	for raw, want := range tests {
		if got := ParseGender(raw); got != want {
			t.Fatalf("ParseGender(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestMembershipStateAllowed(t *testing.T) {
	tests := []struct {
		name  string
		state *MembershipState
		want  bool
	}{
		{name: "nil", state: nil, want: false},
		{name: "active", state: &MembershipState{Status: MembershipActive, IsActive: true}, want: true},
		{name: "active_flag_off", state: &MembershipState{Status: MembershipActive, IsActive: false}, want: false},
		{name: "pending", state: &MembershipState{Status: MembershipPending, IsActive: true}, want: false},
		{name: "rejected", state: &MembershipState{Status: MembershipRejected}, want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.state.Allowed(); got != test.want {
				t.Fatalf("Allowed() = %t, want %t", got, test.want)
			}
		})
	}
}
