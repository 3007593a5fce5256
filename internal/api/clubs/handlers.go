// internal/api/clubs/handlers.go
package clubs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api/apiutil"
	"github.com/codr1/VolleySmart/internal/membership"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/ratelimit"
)

const clubsQueryTimeout = 5 * time.Second

// Handlers serves club creation, join requests and member management.
type Handlers struct {
	members    *membership.Service
	cache      *querycache.Cache
	trustProxy bool
}

type Option func(*Handlers)

// WithTrustedProxy reads the client address for join throttling from
// X-Forwarded-For and X-Real-IP.
func WithTrustedProxy(trust bool) Option {
	return func(h *Handlers) { h.trustProxy = trust }
}

func NewHandlers(members *membership.Service, cache *querycache.Cache, opts ...Option) (*Handlers, error) {
	if members == nil || cache == nil {
		return nil, errors.New("club handlers require a membership service and a query cache")
	}
	h := &Handlers{members: members, cache: cache}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts the club routes on mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/clubs", h.HandleCreateClub)
	mux.HandleFunc("GET /api/v1/clubs", h.HandleListClubs)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/join", h.HandleJoin)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/membership", h.HandleMembershipStatus)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/members", h.HandleListMembers)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/members/pending", h.HandleListPending)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/members/{userID}/{action}", h.HandleDecide)
}

type createClubRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	JoinCode    string `json:"joinCode"`
}

type joinRequest struct {
	JoinCode string `json:"joinCode"`
}

// POST /api/v1/clubs
func (h *Handlers) HandleCreateClub(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createClubRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	club, err := h.members.CreateClub(ctx, membership.CreateClubInput{
		Name:        req.Name,
		Description: req.Description,
		JoinCode:    req.JoinCode,
		CreatorID:   user.ID,
	})
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusCreated, club)
}

// GET /api/v1/clubs
func (h *Handlers) HandleListClubs(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	clubs, err := querycache.Fetch(ctx, h.cache, querycache.NewKey(querycache.FamilyUserClubs, user.ID),
		func(ctx context.Context) ([]models.UserClub, error) {
			return h.members.ListClubs(ctx, user.ID)
		})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"clubs": clubs})
}

// POST /api/v1/clubs/{clubID}/join
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req joinRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	m, err := h.members.RequestJoin(ctx, membership.JoinInput{
		ClubID:   clubID,
		UserID:   user.ID,
		JoinCode: req.JoinCode,
		IP:       ratelimit.GetClientIP(r, h.trustProxy),
	})
	if err != nil {
		var rateErr *membership.RateLimitError
		if errors.As(err, &rateErr) {
			w.Header().Set("Retry-After", retryAfterSeconds(rateErr.RetryAfter))
		}
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusAccepted, m)
}

// GET /api/v1/clubs/{clubID}/membership
//
// Reports the caller's own membership whatever its status, so clients can
// poll for revocation.
func (h *Handlers) HandleMembershipStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	state, err := h.members.MembershipStatus(ctx, user.ID, clubID)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, state)
}

// GET /api/v1/clubs/{clubID}/members
func (h *Handlers) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, ok := apiutil.RequireClubAccess(w, r, h.members, clubID); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	members, err := querycache.Fetch(ctx, h.cache, querycache.NewKey(querycache.FamilyMemberships, clubID),
		func(ctx context.Context) ([]models.Membership, error) {
			return h.members.ListMembers(ctx, clubID)
		})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"members": members})
}

// GET /api/v1/clubs/{clubID}/members/pending
func (h *Handlers) HandleListPending(w http.ResponseWriter, r *http.Request) {
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, ok := apiutil.RequireClubAccess(w, r, h.members, clubID, models.RoleAdmin, models.RoleEditor); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	pending, err := querycache.Fetch(ctx, h.cache, querycache.NewKey(querycache.FamilyPendingRequests, clubID),
		func(ctx context.Context) ([]models.Membership, error) {
			return h.members.ListPending(ctx, clubID)
		})
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"pending": pending})
}

// POST /api/v1/clubs/{clubID}/members/{userID}/{action}
func (h *Handlers) HandleDecide(w http.ResponseWriter, r *http.Request) {
	actor, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	userID, err := apiutil.PathValue(r, "userID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	action, ok := membership.ParseAction(r.PathValue("action"))
	if !ok {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusNotFound, Message: "Unknown member action"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), clubsQueryTimeout)
	defer cancel()

	m, err := h.members.Decide(ctx, clubID, actor.ID, userID, action)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, m)
}

func mapError(err error) error {
	var rateErr *membership.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		return apiutil.HandlerError{Status: http.StatusTooManyRequests, Message: "Too many join requests, try again later", Err: err}
	case errors.Is(err, membership.ErrClubNotFound):
		return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Club not found", Err: err}
	case errors.Is(err, membership.ErrInvalidJoinCode):
		return apiutil.HandlerError{Status: http.StatusForbidden, Message: "Invalid join code", Err: err}
	case errors.Is(err, membership.ErrAlreadyMember):
		return apiutil.HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err}
	case errors.Is(err, membership.ErrInvalidTransition):
		return apiutil.HandlerError{Status: http.StatusConflict, Message: err.Error(), Err: err}
	case errors.Is(err, membership.ErrInvalidInput):
		return apiutil.HandlerError{Status: http.StatusBadRequest, Message: err.Error(), Err: err}
	}
	return err
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}
