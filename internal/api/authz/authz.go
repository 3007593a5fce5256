package authz

import (
	"context"
	"errors"
	"slices"

	"github.com/codr1/VolleySmart/internal/models"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AuthUser is the caller as identified by the upstream auth proxy.
type AuthUser struct {
	ID string
}

// MembershipChecker reads a user's membership in a club.
type MembershipChecker interface {
	MembershipStatus(ctx context.Context, userID, clubID string) (*models.MembershipState, error)
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

// RequireUser returns the authenticated caller or ErrUnauthenticated.
func RequireUser(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireActiveMembership allows the caller through only while their
// membership in clubID is active. A missing membership is ErrForbidden; other
// checker errors are returned as-is.
func RequireActiveMembership(ctx context.Context, checker MembershipChecker, clubID string) (*models.MembershipState, error) {
	user, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	state, err := checker.MembershipStatus(ctx, user.ID, clubID)
	if err != nil {
		if errors.Is(err, models.ErrMembershipNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !state.Allowed() {
		return nil, ErrForbidden
	}
	return state, nil
}

// RequireRole is RequireActiveMembership restricted to the given roles.
func RequireRole(ctx context.Context, checker MembershipChecker, clubID string, roles ...models.Role) (*models.MembershipState, error) {
	state, err := RequireActiveMembership(ctx, checker, clubID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(roles, state.Role) {
		return nil, ErrForbidden
	}
	return state, nil
}
