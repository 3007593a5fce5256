package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/codr1/VolleySmart/internal/db"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/testutil"
)

func TestWithSQLiteOptionsViaNew(t *testing.T) {
	database := testutil.NewTestDB(t)

	var fk int
	if err := database.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("read foreign_keys pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
}

func TestMembershipRequeueKeepsRow(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")

	first := testutil.SeedMembership(t, database, "club-1", "user-1", models.RoleMember, models.MembershipRejected)

	again, err := database.Queries.CreateMembership(ctx, db.CreateMembershipParams{
		ID:          "ignored-new-id",
		ClubID:      "club-1",
		UserID:      "user-1",
		Role:        models.RoleMember,
		Status:      models.MembershipPending,
		RequestedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateMembership() error = %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("membership id = %q, want %q", again.ID, first.ID)
	}
	if again.Status != models.MembershipPending || again.DecidedAt != nil {
		t.Fatalf("unexpected requeued membership %+v", again)
	}

	pending, err := database.Queries.ListPendingMemberships(ctx, "club-1")
	if err != nil {
		t.Fatalf("ListPendingMemberships() error = %v", err)
	}
	if len(pending) != 1 || pending[0].UserID != "user-1" {
		t.Fatalf("pending = %+v", pending)
	}
}

func TestUpdateMembershipStatusMissingRow(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")

	_, err := database.Queries.UpdateMembershipStatus(context.Background(), db.UpdateMembershipStatusParams{
		ClubID:    "club-1",
		UserID:    "nobody",
		Role:      models.RoleMember,
		Status:    models.MembershipActive,
		IsActive:  true,
		DecidedAt: time.Now(),
	})
	if !db.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListClubsForUserIncludesEveryStatus(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "alpha", "admin")
	testutil.SeedClub(t, database, "beta", "admin")
	testutil.SeedMembership(t, database, "alpha", "user-1", models.RoleMember, models.MembershipActive)
	testutil.SeedMembership(t, database, "beta", "user-1", models.RoleMember, models.MembershipPending)

	clubs, err := database.Queries.ListClubsForUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListClubsForUser() error = %v", err)
	}
	if len(clubs) != 2 {
		t.Fatalf("len(clubs) = %d, want 2", len(clubs))
	}
	if clubs[0].ID != "alpha" || !clubs[0].IsActive || clubs[1].Status != models.MembershipPending {
		t.Fatalf("unexpected clubs %+v", clubs)
	}
}

func TestExpirePendingMemberships(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")

	old := time.Now().Add(-48 * time.Hour)
	for _, userID := range []string{"old-1", "old-2"} {
		if _, err := database.Queries.CreateMembership(ctx, db.CreateMembershipParams{
			ID: userID, ClubID: "club-1", UserID: userID,
			Role: models.RoleMember, Status: models.MembershipPending, RequestedAt: old,
		}); err != nil {
			t.Fatalf("CreateMembership() error = %v", err)
		}
	}
	testutil.SeedMembership(t, database, "club-1", "fresh", models.RoleMember, models.MembershipPending)

	cutoff := time.Now().Add(-24 * time.Hour)
	stale, err := database.Queries.ListStalePendingMemberships(ctx, cutoff)
	if err != nil {
		t.Fatalf("ListStalePendingMemberships() error = %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("len(stale) = %d, want 2", len(stale))
	}

	n, err := database.Queries.ExpirePendingMemberships(ctx, db.ExpirePendingMembershipsParams{Before: cutoff, DecidedAt: time.Now()})
	if err != nil {
		t.Fatalf("ExpirePendingMemberships() error = %v", err)
	}
	if n != 2 {
		t.Fatalf("expired %d rows, want 2", n)
	}

	state, err := database.Queries.GetMembershipStatus(ctx, db.GetMembershipParams{ClubID: "club-1", UserID: "fresh"})
	if err != nil {
		t.Fatalf("GetMembershipStatus() error = %v", err)
	}
	if state.Status != models.MembershipPending {
		t.Fatalf("fresh request status = %q, want pending", state.Status)
	}
}

func TestUpsertPlayerRejectsForeignClub(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")
	testutil.SeedClub(t, database, "club-2", "admin")
	testutil.SeedPlayer(t, database, "club-1", models.Player{ID: "p1", Name: "Ana", Gender: models.GenderFemale})

	_, err := database.Queries.UpsertPlayer(context.Background(), db.UpsertPlayerParams{
		ClubID: "club-2",
		Player: models.Player{ID: "p1", Name: "Hijack", Gender: models.GenderMale},
		Now:    time.Now(),
	})
	if !db.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListPlayersByIDsKeepsRequestOrder(t *testing.T) {
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")
	for _, id := range []string{"p1", "p2", "p3"} {
		testutil.SeedPlayer(t, database, "club-1", models.Player{ID: id, Name: id, Gender: models.GenderMale})
	}

	players, err := database.Queries.ListPlayersByIDs(context.Background(), "club-1", []string{"p3", "missing", "p1"})
	if err != nil {
		t.Fatalf("ListPlayersByIDs() error = %v", err)
	}
	if len(players) != 2 || players[0].ID != "p3" || players[1].ID != "p1" {
		t.Fatalf("unexpected players %+v", players)
	}
}

func TestListScoredParticipations(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")
	for _, id := range []string{"p1", "p2"} {
		testutil.SeedPlayer(t, database, "club-1", models.Player{ID: id, Name: id, Gender: models.GenderFemale})
	}

	now := time.Now()
	if _, err := database.Queries.CreateMatchDay(ctx, db.CreateMatchDayParams{
		ID: "day-1", ClubID: "club-1", PlayedOn: now, CreatedAt: now,
	}); err != nil {
		t.Fatalf("CreateMatchDay() error = %v", err)
	}
	err := database.RunInTx(ctx, func(tx *db.DB) error {
		return tx.Queries.SaveMatchTeams(ctx, db.SaveMatchTeamsParams{
			MatchDayID: "day-1", ClubID: "club-1", TeamA: []string{"p1"}, TeamB: []string{"p2"},
		})
	})
	if err != nil {
		t.Fatalf("SaveMatchTeams() error = %v", err)
	}

	for _, id := range []string{"m1", "m2", "m3"} {
		if _, err := database.Queries.CreateMatch(ctx, db.CreateMatchParams{
			ID: id, MatchDayID: "day-1", ClubID: "club-1", CreatedAt: now,
		}); err != nil {
			t.Fatalf("CreateMatch() error = %v", err)
		}
	}
	scores := map[string][2]int{"m1": {25, 20}, "m2": {18, 25}}
	for id, s := range scores {
		if _, err := database.Queries.RecordScore(ctx, db.RecordScoreParams{
			ID: id, ClubID: "club-1", TeamAScore: s[0], TeamBScore: s[1], ScoredAt: now,
		}); err != nil {
			t.Fatalf("RecordScore(%s) error = %v", id, err)
		}
	}

	rows, err := database.Queries.ListScoredParticipations(ctx, "club-1")
	if err != nil {
		t.Fatalf("ListScoredParticipations() error = %v", err)
	}
	// Two scored matches, two players each; m3 is unscored.
	if len(rows) != 4 {
		t.Fatalf("len(rows) = %d, want 4", len(rows))
	}
	for _, row := range rows {
		if row.MatchID == "m3" {
			t.Fatalf("unscored match returned: %+v", row)
		}
		want, ok := scores[row.MatchID]
		if !ok || row.TeamAScore != want[0] || row.TeamBScore != want[1] {
			t.Fatalf("unexpected row %+v", row)
		}
		if (row.PlayerID == "p1") != (row.Team == "A") {
			t.Fatalf("player %s on team %s", row.PlayerID, row.Team)
		}
	}

	teamA, teamB, err := database.Queries.ListMatchTeams(ctx, "day-1")
	if err != nil {
		t.Fatalf("ListMatchTeams() error = %v", err)
	}
	if len(teamA) != 1 || teamA[0] != "p1" || len(teamB) != 1 || teamB[0] != "p2" {
		t.Fatalf("teams = %v / %v", teamA, teamB)
	}
}

func TestRecordScoreWrongClub(t *testing.T) {
	ctx := context.Background()
	database := testutil.NewTestDB(t)
	testutil.SeedClub(t, database, "club-1", "admin")
	now := time.Now()
	if _, err := database.Queries.CreateMatchDay(ctx, db.CreateMatchDayParams{ID: "d", ClubID: "club-1", PlayedOn: now, CreatedAt: now}); err != nil {
		t.Fatalf("CreateMatchDay() error = %v", err)
	}
	if _, err := database.Queries.CreateMatch(ctx, db.CreateMatchParams{ID: "m", MatchDayID: "d", ClubID: "club-1", CreatedAt: now}); err != nil {
		t.Fatalf("CreateMatch() error = %v", err)
	}

	_, err := database.Queries.RecordScore(ctx, db.RecordScoreParams{ID: "m", ClubID: "club-2", TeamAScore: 1, ScoredAt: now})
	if !db.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
