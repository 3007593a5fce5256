package realtime

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/codr1/VolleySmart/internal/models"
)

func membershipEvent(userID, clubID string, wasActive, isActive bool, status models.MembershipStatus) Event {
	return Event{
		Entity: EntityClubMembers,
		Type:   ChangeUpdate,
		Old:    &MembershipRow{ID: "m1", ClubID: clubID, UserID: userID, Status: models.MembershipActive, IsActive: wasActive},
		New:    &MembershipRow{ID: "m1", ClubID: clubID, UserID: userID, Status: status, IsActive: isActive},
	}
}

func receive(t *testing.T, stream Stream) Event {
	t.Helper()
	select {
	case ev, ok := <-stream.Events():
		if !ok {
			t.Fatalf("stream closed before event arrived")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return Event{}
}

func TestDecodeMembershipEvent(t *testing.T) {
	payload := `{"entity":"club_members","type":"UPDATE",
		"old":{"id":"m1","club_id":"c1","user_id":"u1","status":"active","is_active":true},
		"new":{"id":"m1","club_id":"c1","user_id":"u1","status":"removed","is_active":false},
		"commit_at":"2026-01-02T03:04:05Z"}`

	ev, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	oldRow, newRow := ev.Memberships()
	if oldRow == nil || newRow == nil {
		t.Fatalf("expected typed membership rows, got old=%T new=%T", ev.Old, ev.New)
	}
	if !oldRow.IsActive || newRow.IsActive || newRow.Status != models.MembershipRemoved {
		t.Fatalf("unexpected rows: old=%+v new=%+v", oldRow, newRow)
	}
	if ev.ClubID() != "c1" || ev.UserID() != "u1" {
		t.Fatalf("ClubID()/UserID() = %q/%q, want c1/u1", ev.ClubID(), ev.UserID())
	}
}

func TestDecodeDeleteKeepsOldRowOnly(t *testing.T) {
	ev, err := Decode([]byte(`{"entity":"matches","type":"DELETE","old":{"id":"x","club_id":"c9","match_day_id":"d1"},"new":null}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if ev.New != nil {
		t.Fatalf("expected nil new row, got %+v", ev.New)
	}
	if _, ok := ev.Old.(*MatchRow); !ok {
		t.Fatalf("old row type = %T, want *MatchRow", ev.Old)
	}
	if ev.ClubID() != "c9" {
		t.Fatalf("ClubID() = %q, want c9", ev.ClubID())
	}
}

func TestDecodeRejectsUnknownInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "unknown_entity", payload: `{"entity":"courts","type":"INSERT","new":{}}`},
		{name: "unknown_type", payload: `{"entity":"clubs","type":"TRUNCATE"}`},
		{name: "bad_json", payload: `{"entity":`},
		{name: "bad_row", payload: `{"entity":"clubs","type":"INSERT","new":{"id":42}}`},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Decode([]byte(test.payload)); err == nil {
				t.Fatalf("expected error for %s", test.payload)
			}
		})
	}

	_, err := Decode([]byte(`{"entity":"courts","type":"INSERT"}`))
	if !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}

func TestFilterMatch(t *testing.T) {
	ev := membershipEvent("u1", "c1", true, false, models.MembershipRemoved)
	matchDay := Event{Entity: EntityMatchDays, Type: ChangeInsert, New: &MatchDayRow{ID: "d1", ClubID: "c1"}}

	tests := []struct {
		name   string
		filter Filter
		event  Event
		want   bool
	}{
		{name: "empty_filter", filter: Filter{}, event: ev, want: true},
		{name: "user_match", filter: Filter{UserID: "u1"}, event: ev, want: true},
		{name: "user_mismatch", filter: Filter{UserID: "u2"}, event: ev, want: false},
		{name: "club_match", filter: Filter{ClubID: "c1"}, event: matchDay, want: true},
		{name: "club_mismatch", filter: Filter{ClubID: "c2"}, event: matchDay, want: false},
		{name: "entity_excluded", filter: Filter{Entities: []Entity{EntityClubMembers}}, event: matchDay, want: false},
		{name: "user_filter_on_club_table", filter: Filter{UserID: "u1"}, event: matchDay, want: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.filter.Match(test.event); got != test.want {
				t.Fatalf("Match() = %t, want %t", got, test.want)
			}
		})
	}
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	ctx := context.Background()

	userStream, err := hub.Subscribe(ctx, Filter{Entities: []Entity{EntityClubMembers}, UserID: "u1"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	otherClub, err := hub.Subscribe(ctx, Filter{ClubID: "c2"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	hub.Publish(ctx, membershipEvent("u1", "c1", true, false, models.MembershipRemoved))

	got := receive(t, userStream)
	if got.CommitAt.IsZero() {
		t.Fatalf("expected commit time to be stamped")
	}
	select {
	case ev := <-otherClub.Events():
		t.Fatalf("unexpected event on other club stream: %+v", ev)
	default:
	}
}

func TestHubCloseIsIdempotentAndUnregisters(t *testing.T) {
	hub := NewHub(1)
	stream, err := hub.Subscribe(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}
	_ = stream.Close()
	_ = stream.Close()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("SubscriberCount() = %d, want 0", hub.SubscriberCount())
	}
	if _, ok := <-stream.Events(); ok {
		t.Fatalf("expected closed events channel")
	}

	hub.Close()
	if _, err := hub.Subscribe(context.Background(), Filter{}); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}

func TestHubSubscriptionEndsWithContext(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := hub.Subscribe(ctx, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-stream.Events():
		if ok {
			t.Fatalf("expected channel close, got event")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscription not closed after context cancel")
	}
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	ctx := context.Background()
	stream, err := hub.Subscribe(ctx, Filter{})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	first := Event{Entity: EntityMatchDays, Type: ChangeInsert, New: &MatchDayRow{ID: "d1", ClubID: "c1"}}
	second := Event{Entity: EntityMatchDays, Type: ChangeInsert, New: &MatchDayRow{ID: "d2", ClubID: "c1"}}
	hub.Publish(ctx, first)
	hub.Publish(ctx, second)

	got := receive(t, stream)
	if row := got.New.(*MatchDayRow); row.ID != "d1" {
		t.Fatalf("received %s, want d1", row.ID)
	}
	select {
	case ev := <-stream.Events():
		t.Fatalf("expected second event to be dropped, got %+v", ev)
	default:
	}
}

func TestSSERoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSEComment(&buf, "ping"); err != nil {
		t.Fatalf("WriteSSEComment() error = %v", err)
	}
	if err := WriteSSE(&buf, membershipEvent("u1", "c1", true, false, models.MembershipRemoved)); err != nil {
		t.Fatalf("WriteSSE() error = %v", err)
	}
	buf.WriteString("data: {not json}\n\n")
	if err := WriteSSE(&buf, Event{Entity: EntityClubs, Type: ChangeInsert, New: &ClubRow{ID: "c2", Name: "Spikers"}}); err != nil {
		t.Fatalf("WriteSSE() error = %v", err)
	}

	var events []Event
	var bad int
	err := ReadSSE(&buf, func(ev Event) error {
		events = append(events, ev)
		return nil
	}, func(error) { bad++ })
	if err != nil {
		t.Fatalf("ReadSSE() error = %v", err)
	}
	if len(events) != 2 || bad != 1 {
		t.Fatalf("got %d events and %d bad messages, want 2 and 1", len(events), bad)
	}
	if events[1].ClubID() != "c2" {
		t.Fatalf("second event club = %q, want c2", events[1].ClubID())
	}
}

func TestHTTPFeedStreamsFilteredEvents(t *testing.T) {
	type seenRequest struct {
		path, user, entities string
	}
	requests := make(chan seenRequest, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests <- seenRequest{
			path:     r.URL.Path,
			user:     r.Header.Get(UserHeader),
			entities: r.URL.Query().Get("entities"),
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_ = WriteSSE(w, Event{Entity: EntityMatchDays, Type: ChangeInsert, New: &MatchDayRow{ID: "d1", ClubID: "other"}})
		_ = WriteSSE(w, Event{Entity: EntityMatchDays, Type: ChangeInsert, New: &MatchDayRow{ID: "d2", ClubID: "c1"}})
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL+"/", "u1", server.Client())
	stream, err := feed.Subscribe(context.Background(), Filter{ClubID: "c1", Entities: []Entity{EntityMatchDays, EntityMatches}})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer stream.Close()

	ev := receive(t, stream)
	if row := ev.New.(*MatchDayRow); row.ID != "d2" {
		t.Fatalf("received %s, want d2", row.ID)
	}
	req := <-requests
	if req.path != "/api/v1/clubs/c1/events" || req.user != "u1" || !strings.Contains(req.entities, "matches") {
		t.Fatalf("unexpected request path=%q user=%q entities=%q", req.path, req.user, req.entities)
	}
	if _, ok := <-stream.Events(); ok {
		t.Fatalf("expected stream to end when the server closes the response")
	}
}

func TestHTTPFeedRejectsNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL, "u1", server.Client())
	if _, err := feed.Subscribe(context.Background(), Filter{ClubID: "c1"}); err == nil {
		t.Fatalf("expected error for forbidden stream")
	}
}

func TestParseEntities(t *testing.T) {
	entities, err := ParseEntities("club_members, matches")
	if err != nil {
		t.Fatalf("ParseEntities() error = %v", err)
	}
	if len(entities) != 2 || entities[1] != EntityMatches {
		t.Fatalf("ParseEntities() = %v", entities)
	}
	if _, err := ParseEntities("club_members,courts"); !errors.Is(err, ErrUnknownEntity) {
		t.Fatalf("expected ErrUnknownEntity, got %v", err)
	}
}
