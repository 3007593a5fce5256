package apiutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api/authz"
	"github.com/codr1/VolleySmart/internal/models"
)

const maxBodyBytes = 1 << 20

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteError writes err as a JSON error body. HandlerError and FieldError
// carry their own status; 5xx responses hide the underlying message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.Ctx(r.Context())

	status := http.StatusInternalServerError
	body := ErrorResponse{Error: "Internal Server Error"}

	var handlerErr HandlerError
	var fieldErr FieldError
	switch {
	case errors.As(err, &fieldErr):
		status = http.StatusBadRequest
		body = ErrorResponse{Error: fieldErr.Error(), Field: fieldErr.Field}
	case errors.As(err, &handlerErr):
		status = handlerErr.Status
		body.Error = handlerErr.Message
	case errors.Is(err, authz.ErrUnauthenticated):
		status = http.StatusUnauthorized
		body.Error = "Unauthorized"
	case errors.Is(err, authz.ErrForbidden):
		status = http.StatusForbidden
		body.Error = "Forbidden"
	case errors.Is(err, models.ErrMembershipNotFound):
		status = http.StatusNotFound
		body.Error = err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body.Error = "Request timed out"
	}

	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg("Request failed")
		if handlerErr.Message == "" {
			body.Error = http.StatusText(status)
		}
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	if writeErr := WriteJSON(w, status, body); writeErr != nil {
		logger.Error().Err(writeErr).Msg("Failed to write error response")
	}
}

// RequireClubAccess writes the error response and returns false unless the
// caller is an active member of clubID, restricted to roles when given.
func RequireClubAccess(w http.ResponseWriter, r *http.Request, checker authz.MembershipChecker, clubID string, roles ...models.Role) (*models.MembershipState, bool) {
	logger := log.Ctx(r.Context())
	user := authz.UserFromContext(r.Context())

	var state *models.MembershipState
	var err error
	if len(roles) > 0 {
		state, err = authz.RequireRole(r.Context(), checker, clubID, roles...)
	} else {
		state, err = authz.RequireActiveMembership(r.Context(), checker, clubID)
	}
	if err != nil {
		logEvent := logger.Warn().Str("club_id", clubID).Err(err)
		if user != nil {
			logEvent = logEvent.Str("user_id", user.ID)
		}
		logEvent.Msg("Club access denied")
		WriteError(w, r, err)
		return nil, false
	}
	return state, true
}

// RequireUser writes a 401 and returns false when the request has no caller.
func RequireUser(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, bool) {
	user, err := authz.RequireUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	return user, true
}
