package standings

import (
	"testing"
)

func TestCalculate(t *testing.T) {
	rows := []Participation{
		{MatchID: "m1", PlayerID: "p1", Name: "Ana", Team: "A", TeamAScore: 25, TeamBScore: 20},
		{MatchID: "m1", PlayerID: "p2", Name: "Ben", Team: "B", TeamAScore: 25, TeamBScore: 20},
		{MatchID: "m2", PlayerID: "p1", Name: "Ana", Team: "A", TeamAScore: 15, TeamBScore: 25},
		{MatchID: "m2", PlayerID: "p2", Name: "Ben", Team: "B", TeamAScore: 15, TeamBScore: 25},
		{MatchID: "m3", PlayerID: "p3", Name: "cleo", Team: "A", TeamAScore: 21, TeamBScore: 21},
	}

	board, err := Calculate(rows)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if len(board) != 3 {
		t.Fatalf("len(board) = %d, want 3", len(board))
	}

	// Ana and Ben are tied on wins; Ben leads on differential (+5 vs -5).
	if board[0].PlayerID != "p2" || board[1].PlayerID != "p1" {
		t.Fatalf("unexpected order %+v", board)
	}
	ben := board[0]
	if ben.Played != 2 || ben.Wins != 1 || ben.Losses != 1 || ben.PointsFor != 45 || ben.PointsAgainst != 40 || ben.PointDifferential != 5 {
		t.Fatalf("unexpected entry %+v", ben)
	}

	cleo := board[2]
	if cleo.Played != 1 || cleo.Wins != 0 || cleo.Losses != 0 || cleo.PointDifferential != 0 {
		t.Fatalf("draw should count as played only: %+v", cleo)
	}
}

func TestCalculateOrdersByNameAfterDifferential(t *testing.T) {
	rows := []Participation{
		{MatchID: "m1", PlayerID: "z", Name: "zoe", Team: "A", TeamAScore: 25, TeamBScore: 20},
		{MatchID: "m1", PlayerID: "a", Name: "Adam", Team: "A", TeamAScore: 25, TeamBScore: 20},
	}
	board, err := Calculate(rows)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if board[0].PlayerID != "a" || board[1].PlayerID != "z" {
		t.Fatalf("unexpected order %+v", board)
	}
}

func TestCalculateRejectsUnknownTeam(t *testing.T) {
	_, err := Calculate([]Participation{{MatchID: "m1", PlayerID: "p1", Team: "C"}})
	if err == nil {
		t.Fatal("expected error for unknown team")
	}
}

func TestCalculateEmpty(t *testing.T) {
	board, err := Calculate(nil)
	if err != nil {
		t.Fatalf("Calculate() error = %v", err)
	}
	if board == nil || len(board) != 0 {
		t.Fatalf("expected empty non-nil board, got %#v", board)
	}
}
