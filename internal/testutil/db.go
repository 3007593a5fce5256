package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/VolleySmart/internal/db"
	"github.com/codr1/VolleySmart/internal/models"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// SeedClub inserts a club with adminID as its active admin. The join code
// hash is not a valid bcrypt hash, so join requests against it always fail.
func SeedClub(t *testing.T, database *db.DB, clubID, adminID string) models.Club {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()
	club, err := database.Queries.CreateClub(ctx, db.CreateClubParams{
		ID:           clubID,
		Name:         "Club " + clubID,
		JoinCodeHash: "x",
		CreatedBy:    adminID,
		CreatedAt:    now,
	})
	if err != nil {
		t.Fatalf("seed club %s: %v", clubID, err)
	}
	SeedMembership(t, database, clubID, adminID, models.RoleAdmin, models.MembershipActive)
	return club
}

// SeedMembership inserts or replaces a membership row.
func SeedMembership(t *testing.T, database *db.DB, clubID, userID string, role models.Role, status models.MembershipStatus) models.Membership {
	t.Helper()

	now := time.Now().UTC()
	m, err := database.Queries.CreateMembership(context.Background(), db.CreateMembershipParams{
		ID:          clubID + ":" + userID,
		ClubID:      clubID,
		UserID:      userID,
		Role:        role,
		Status:      status,
		IsActive:    status == models.MembershipActive,
		RequestedAt: now,
	})
	if err != nil {
		t.Fatalf("seed membership %s/%s: %v", clubID, userID, err)
	}
	return m
}

// SeedPlayer inserts a roster entry for clubID.
func SeedPlayer(t *testing.T, database *db.DB, clubID string, p models.Player) models.Player {
	t.Helper()

	saved, err := database.Queries.UpsertPlayer(context.Background(), db.UpsertPlayerParams{
		ClubID: clubID,
		Player: p,
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed player %s: %v", p.ID, err)
	}
	return saved
}
