// internal/api/matchdays/handlers.go
package matchdays

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api/apiutil"
	"github.com/codr1/VolleySmart/internal/api/authz"
	"github.com/codr1/VolleySmart/internal/matchday"
	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/teams"
)

const matchDayQueryTimeout = 5 * time.Second

// managers may change the roster, match days, teams and scores.
var managers = []models.Role{models.RoleAdmin, models.RoleEditor}

type Handlers struct {
	days    *matchday.Service
	checker authz.MembershipChecker
}

func NewHandlers(days *matchday.Service, checker authz.MembershipChecker) (*Handlers, error) {
	if days == nil || checker == nil {
		return nil, errors.New("match day handlers require a match day service and a membership checker")
	}
	return &Handlers{days: days, checker: checker}, nil
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/players", h.HandleSavePlayer)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/players", h.HandleListPlayers)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/match-days", h.HandleCreateMatchDay)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/match-days", h.HandleListMatchDays)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/match-days/{matchDayID}/teams", h.HandleGenerateTeams)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/match-days/{matchDayID}/teams", h.HandleTeams)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/match-days/{matchDayID}/matches", h.HandleCreateMatch)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/match-days/{matchDayID}/matches", h.HandleScoreboard)
	mux.HandleFunc("POST /api/v1/clubs/{clubID}/matches/{matchID}/score", h.HandleRecordScore)
	mux.HandleFunc("GET /api/v1/clubs/{clubID}/leaderboard", h.HandleLeaderboard)
}

type savePlayerRequest struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Gender            string  `json:"gender"`
	PreferredPosition string  `json:"preferredPosition"`
	SkillRating       float64 `json:"skillRating"`
}

type createMatchDayRequest struct {
	PlayedOn string `json:"playedOn"`
	Notes    string `json:"notes"`
}

type generateTeamsRequest struct {
	PlayerIDs []string `json:"playerIds"`
}

type recordScoreRequest struct {
	TeamAScore int `json:"teamAScore"`
	TeamBScore int `json:"teamBScore"`
}

type teamsResponse struct {
	teams.Assignment
	Summary teams.Summary `json:"summary"`
}

// POST /api/v1/clubs/{clubID}/players
func (h *Handlers) HandleSavePlayer(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r, managers...)
	if !ok {
		return
	}

	var req savePlayerRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	player, err := h.days.SavePlayer(ctx, clubID, models.Player{
		ID:                req.ID,
		Name:              req.Name,
		Gender:            models.Gender(req.Gender),
		PreferredPosition: req.PreferredPosition,
		SkillRating:       req.SkillRating,
	})
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, player)
}

// GET /api/v1/clubs/{clubID}/players
func (h *Handlers) HandleListPlayers(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	players, err := h.days.ListPlayers(ctx, clubID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"players": players})
}

// POST /api/v1/clubs/{clubID}/match-days
func (h *Handlers) HandleCreateMatchDay(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r, managers...)
	if !ok {
		return
	}

	var req createMatchDayRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	playedOn, err := apiutil.ParseDateField(req.PlayedOn, "playedOn")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	day, err := h.days.CreateMatchDay(ctx, clubID, playedOn, req.Notes)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusCreated, day)
}

// GET /api/v1/clubs/{clubID}/match-days
func (h *Handlers) HandleListMatchDays(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	days, err := h.days.ListMatchDays(ctx, clubID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"matchDays": days})
}

// POST /api/v1/clubs/{clubID}/match-days/{matchDayID}/teams
func (h *Handlers) HandleGenerateTeams(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r, managers...)
	if !ok {
		return
	}
	matchDayID, err := apiutil.PathValue(r, "matchDayID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req generateTeamsRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	assignment, err := h.days.GenerateTeams(ctx, clubID, matchDayID, req.PlayerIDs)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, teamsResponse{Assignment: assignment, Summary: teams.Summarize(assignment)})
}

// GET /api/v1/clubs/{clubID}/match-days/{matchDayID}/teams
func (h *Handlers) HandleTeams(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r)
	if !ok {
		return
	}
	matchDayID, err := apiutil.PathValue(r, "matchDayID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	assignment, err := h.days.Teams(ctx, clubID, matchDayID)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, teamsResponse{Assignment: assignment, Summary: teams.Summarize(assignment)})
}

// POST /api/v1/clubs/{clubID}/match-days/{matchDayID}/matches
func (h *Handlers) HandleCreateMatch(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r, managers...)
	if !ok {
		return
	}
	matchDayID, err := apiutil.PathValue(r, "matchDayID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	match, err := h.days.CreateMatch(ctx, clubID, matchDayID)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusCreated, match)
}

// GET /api/v1/clubs/{clubID}/match-days/{matchDayID}/matches
func (h *Handlers) HandleScoreboard(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r)
	if !ok {
		return
	}
	matchDayID, err := apiutil.PathValue(r, "matchDayID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	matches, err := h.days.Scoreboard(ctx, clubID, matchDayID)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"matches": matches})
}

// POST /api/v1/clubs/{clubID}/matches/{matchID}/score
func (h *Handlers) HandleRecordScore(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r, managers...)
	if !ok {
		return
	}
	matchID, err := apiutil.PathValue(r, "matchID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	var req recordScoreRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, apiutil.HandlerError{Status: http.StatusBadRequest, Message: "Invalid JSON body", Err: err})
		return
	}
	if _, err := apiutil.ParseNonNegativeIntField(req.TeamAScore, "teamAScore"); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if _, err := apiutil.ParseNonNegativeIntField(req.TeamBScore, "teamBScore"); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	match, err := h.days.RecordScore(ctx, clubID, matchID, req.TeamAScore, req.TeamBScore)
	if err != nil {
		apiutil.WriteError(w, r, mapError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, match)
}

// GET /api/v1/clubs/{clubID}/leaderboard
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	clubID, ok := h.clubAccess(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), matchDayQueryTimeout)
	defer cancel()

	entries, err := h.days.Leaderboard(ctx, clubID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *Handlers) clubAccess(w http.ResponseWriter, r *http.Request, roles ...models.Role) (string, bool) {
	clubID, err := apiutil.PathValue(r, "clubID")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return "", false
	}
	if _, ok := apiutil.RequireClubAccess(w, r, h.checker, clubID, roles...); !ok {
		return "", false
	}
	return clubID, true
}

func mapError(err error) error {
	switch {
	case errors.Is(err, matchday.ErrMatchDayNotFound),
		errors.Is(err, matchday.ErrMatchNotFound),
		errors.Is(err, matchday.ErrNoTeams):
		return apiutil.HandlerError{Status: http.StatusNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, matchday.ErrPlayerNotFound),
		errors.Is(err, matchday.ErrInvalidScore),
		errors.Is(err, matchday.ErrInvalidInput),
		errors.Is(err, teams.ErrRosterTooSmall),
		errors.Is(err, teams.ErrDuplicatePlayer):
		return apiutil.HandlerError{Status: http.StatusUnprocessableEntity, Message: err.Error(), Err: err}
	}
	return err
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := apiutil.WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}
