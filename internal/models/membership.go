package models

import (
	"errors"
	"strings"
	"time"
)

var ErrMembershipNotFound = errors.New("membership not found")

type MembershipStatus string

const (
	MembershipActive   MembershipStatus = "active"
	MembershipPending  MembershipStatus = "pending"
	MembershipRejected MembershipStatus = "rejected"
	MembershipRemoved  MembershipStatus = "removed"
)

func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipPending, MembershipRejected, MembershipRemoved:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleMember Role = "member"
)

// CanManageMembers reports whether the role may approve, reject or remove
// other members.
func (r Role) CanManageMembers() bool {
	return strings.EqualFold(string(r), string(RoleAdmin)) || strings.EqualFold(string(r), string(RoleEditor))
}

// Membership is the server-side row linking a user to a club.
type Membership struct {
	ID          string           `json:"id"`
	ClubID      string           `json:"clubId"`
	UserID      string           `json:"userId"`
	Role        Role             `json:"role"`
	Status      MembershipStatus `json:"status"`
	IsActive    bool             `json:"isActive"`
	RequestedAt time.Time        `json:"requestedAt"`
	DecidedAt   *time.Time       `json:"decidedAt,omitempty"`
}

// MembershipState is the client-side snapshot of a user's membership in one
// club. Only an active status with the active flag set grants access.
type MembershipState struct {
	ClubID   string           `json:"clubId"`
	Role     Role             `json:"role,omitempty"`
	Status   MembershipStatus `json:"status"`
	IsActive bool             `json:"isActive"`
}

func (s *MembershipState) Allowed() bool {
	return s != nil && s.Status == MembershipActive && s.IsActive
}

func (m Membership) State() MembershipState {
	return MembershipState{ClubID: m.ClubID, Role: m.Role, Status: m.Status, IsActive: m.IsActive}
}
