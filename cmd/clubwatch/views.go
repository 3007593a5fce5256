package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
)

type clubReader interface {
	ListClubs(ctx context.Context, userID string) ([]models.UserClub, error)
	ListMembers(ctx context.Context, userID, clubID string) ([]models.Membership, error)
}

// clubViews holds the reads clubwatch shows. They go through the query cache,
// so live sync invalidations decide when they are refetched.
type clubViews struct {
	cache  *querycache.Cache
	reader clubReader
	userID string
	clubID string
}

// refresh reads both views and reports how many had to be fetched from the
// server. Fresh cache entries are served as they are.
func (v *clubViews) refresh(ctx context.Context) (int, error) {
	fetched := 0

	clubs, err := querycache.Fetch(ctx, v.cache, querycache.NewKey(querycache.FamilyUserClubs, v.userID),
		func(ctx context.Context) ([]models.UserClub, error) {
			fetched++
			return v.reader.ListClubs(ctx, v.userID)
		})
	if err != nil {
		return fetched, fmt.Errorf("refresh clubs: %w", err)
	}

	members, err := querycache.Fetch(ctx, v.cache, querycache.NewKey(querycache.FamilyMemberships, v.clubID),
		func(ctx context.Context) ([]models.Membership, error) {
			fetched++
			return v.reader.ListMembers(ctx, v.userID, v.clubID)
		})
	if err != nil {
		return fetched, fmt.Errorf("refresh members: %w", err)
	}

	if fetched > 0 {
		active := 0
		for _, m := range members {
			if m.Status == models.MembershipActive && m.IsActive {
				active++
			}
		}
		log.Ctx(ctx).Info().
			Int("clubs", len(clubs)).
			Int("active_members", active).
			Int("fetched", fetched).
			Msg("Club views refreshed")
	}
	return fetched, nil
}
