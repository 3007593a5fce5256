package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/realtime"
)

func TestMembershipStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(realtime.UserHeader) != "u1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"Unauthorized"}`))
			return
		}
		switch r.URL.Path {
		case "/api/v1/clubs/club-1/membership":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"clubId":"club-1","role":"member","status":"active","isActive":true}`))
		case "/api/v1/clubs/club-2/membership":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"membership not found"}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("oops"))
		}
	}))
	defer server.Close()

	client := New(server.URL+"/", server.Client())
	ctx := context.Background()

	state, err := client.MembershipStatus(ctx, "u1", "club-1")
	if err != nil {
		t.Fatalf("MembershipStatus: %v", err)
	}
	if !state.Allowed() || state.Role != models.RoleMember {
		t.Fatalf("state = %+v", state)
	}

	if _, err := client.MembershipStatus(ctx, "u1", "club-2"); !errors.Is(err, models.ErrMembershipNotFound) {
		t.Fatalf("expected ErrMembershipNotFound, got %v", err)
	}

	_, err = client.MembershipStatus(ctx, "u2", "club-1")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized || statusErr.Message != "Unauthorized" {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}

	_, err = client.MembershipStatus(ctx, "u1", "club-3")
	if !errors.As(err, &statusErr) || statusErr.Message != "oops" {
		t.Fatalf("expected 500 StatusError with raw body, got %v", err)
	}
}

func TestListReads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/clubs":
			_, _ = w.Write([]byte(`{"clubs":[{"id":"club-1","name":"Beach","role":"admin","status":"active","isActive":true}]}`))
		case "/api/v1/clubs/club-1/members":
			_, _ = w.Write([]byte(`{"members":[{"id":"m1","clubId":"club-1","userId":"u1","role":"admin","status":"active","isActive":true}]}`))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"Forbidden"}`))
		}
	}))
	defer server.Close()

	client := New(server.URL, server.Client())
	ctx := context.Background()

	clubs, err := client.ListClubs(ctx, "u1")
	if err != nil {
		t.Fatalf("ListClubs: %v", err)
	}
	if len(clubs) != 1 || clubs[0].ID != "club-1" || clubs[0].Role != models.RoleAdmin {
		t.Fatalf("clubs = %+v", clubs)
	}

	members, err := client.ListMembers(ctx, "u1", "club-1")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "u1" {
		t.Fatalf("members = %+v", members)
	}

	_, err = client.ListMembers(ctx, "u1", "club-2")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
}
