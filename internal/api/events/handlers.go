// internal/api/events/handlers.go
package events

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api/apiutil"
	"github.com/codr1/VolleySmart/internal/api/authz"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/realtime"
)

const DefaultHeartbeat = 25 * time.Second

// Handlers streams realtime change events as Server-Sent Events.
type Handlers struct {
	feed      realtime.Feed
	checker   authz.MembershipChecker
	heartbeat time.Duration
}

func NewHandlers(feed realtime.Feed, checker authz.MembershipChecker, heartbeat time.Duration) (*Handlers, error) {
	if feed == nil || checker == nil {
		return nil, errors.New("event handlers require a feed and a membership checker")
	}
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &Handlers{feed: feed, checker: checker, heartbeat: heartbeat}, nil
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/events", h.HandleUserEvents)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/events", h.HandleClubEvents)
}

// GET /api/v1/events
//
// Streams changes to the caller's own membership rows in every club.
func (h *Handlers) HandleUserEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	filter := realtime.Filter{
		Entities: []realtime.Entity{realtime.EntityClubMembers},
		UserID:   user.ID,
	}
	h.stream(w, r, user.ID, filter)
}

// GET /api/v1/clubs/{clubID}/events
//
// Streams club-scoped changes to active members. The stream ends once the
// caller's own membership in the club is revoked.
func (h *Handlers) HandleClubEvents(w http.ResponseWriter, r *http.Request) {
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, ok := apiutil.RequireClubAccess(w, r, h.checker, clubID); !ok {
		return
	}
	user := authz.UserFromContext(r.Context())

	entities, err := realtime.ParseEntities(r.URL.Query().Get("entities"))
	if err != nil {
		apiutil.WriteError(w, r, apiutil.FieldError{Field: "entities", Reason: "contains an unknown entity"})
		return
	}
	if len(entities) == 0 {
		entities = realtime.ClubScopedEntities
	}
	h.stream(w, r, user.ID, realtime.Filter{Entities: entities, ClubID: clubID})
}

func (h *Handlers) stream(w http.ResponseWriter, r *http.Request, userID string, filter realtime.Filter) {
	ctx := r.Context()
	logger := log.Ctx(ctx).With().
		Str("component", "event_stream").
		Str("club_id", filter.ClubID).
		Logger()

	sub, err := h.feed.Subscribe(ctx, filter)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to subscribe to realtime feed")
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusServiceUnavailable, Message: "Event stream unavailable", Err: err})
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logger.Warn().Err(err).Msg("Failed to clear write deadline")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		logger.Error().Err(err).Msg("Event stream not supported by response writer")
		return
	}
	logger.Debug().Msg("Event stream opened")

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("Event stream closed by client")
			return
		case <-ticker.C:
			if err := realtime.WriteSSEComment(w, "ping"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				logger.Debug().Msg("Event stream subscription ended")
				return
			}
			if err := realtime.WriteSSE(w, ev); err != nil {
				logger.Warn().Err(err).Msg("Failed to write event")
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if filter.ClubID != "" && revokesCaller(ev, userID) {
				logger.Info().Str("user_id", userID).Msg("Closing club event stream after membership revocation")
				return
			}
		}
	}
}

// revokesCaller reports whether ev ends userID's access to the club.
func revokesCaller(ev realtime.Event, userID string) bool {
	oldRow, newRow := ev.Memberships()
	switch {
	case ev.Entity != realtime.EntityClubMembers:
		return false
	case ev.Type == realtime.ChangeDelete:
		return oldRow != nil && oldRow.UserID == userID
	case newRow == nil || newRow.UserID != userID:
		return false
	}
	return newRow.Status != models.MembershipActive || !newRow.IsActive
}
