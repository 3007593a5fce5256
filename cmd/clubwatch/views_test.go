package main

import (
	"context"
	"errors"
	"testing"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
)

type fakeReader struct {
	clubCalls   int
	memberCalls int
	err         error
}

func (f *fakeReader) ListClubs(_ context.Context, userID string) ([]models.UserClub, error) {
	f.clubCalls++
	return []models.UserClub{{Club: models.Club{ID: "club-1"}, Status: models.MembershipActive, IsActive: true}}, nil
}

func (f *fakeReader) ListMembers(_ context.Context, userID, clubID string) ([]models.Membership, error) {
	f.memberCalls++
	if f.err != nil {
		return nil, f.err
	}
	return []models.Membership{{UserID: userID, ClubID: clubID, Status: models.MembershipActive, IsActive: true}}, nil
}

func TestClubViewsRefetchOnlyAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	cache := querycache.New()
	reader := &fakeReader{}
	views := &clubViews{cache: cache, reader: reader, userID: "u1", clubID: "club-1"}

	fetched, err := views.refresh(ctx)
	if err != nil || fetched != 2 {
		t.Fatalf("first refresh = %d, %v; want 2 fetches", fetched, err)
	}
	if stats := cache.Stats(); stats.Entries != 2 || stats.Stale != 0 {
		t.Fatalf("stats = %+v, want 2 fresh entries", stats)
	}

	if fetched, _ := views.refresh(ctx); fetched != 0 {
		t.Fatalf("refresh without changes fetched %d", fetched)
	}

	// Another club's change only refreshes the club list.
	if n := cache.Invalidate(querycache.InvalidationFor("club-2")); n != 1 {
		t.Fatalf("Invalidate matched %d entries, want 1", n)
	}
	if fetched, _ := views.refresh(ctx); fetched != 1 || reader.clubCalls != 2 || reader.memberCalls != 1 {
		t.Fatalf("fetched %d (clubs %d, members %d) after unrelated change", fetched, reader.clubCalls, reader.memberCalls)
	}

	if n := cache.Invalidate(querycache.InvalidationFor("club-1")); n != 2 {
		t.Fatalf("Invalidate matched %d entries, want 2", n)
	}
	if fetched, _ := views.refresh(ctx); fetched != 2 {
		t.Fatalf("fetched %d after active club change, want 2", fetched)
	}
}

func TestClubViewsRefreshError(t *testing.T) {
	reader := &fakeReader{err: errors.New("boom")}
	views := &clubViews{cache: querycache.New(), reader: reader, userID: "u1", clubID: "club-1"}
	if _, err := views.refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error")
	}
}
