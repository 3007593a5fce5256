// Package apiclient talks to a VolleySmart server on behalf of one user.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/realtime"
)

const defaultTimeout = 10 * time.Second

// StatusError is returned for unexpected HTTP responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// MembershipStatus fetches userID's membership in clubID. A membership the
// server does not know is reported as models.ErrMembershipNotFound.
func (c *Client) MembershipStatus(ctx context.Context, userID, clubID string) (*models.MembershipState, error) {
	var state models.MembershipState
	err := c.getJSON(ctx, userID, "/api/v1/clubs/"+url.PathEscape(clubID)+"/membership", &state)
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, models.ErrMembershipNotFound
		}
		return nil, fmt.Errorf("membership status: %w", err)
	}
	log.Ctx(ctx).Debug().
		Str("club_id", clubID).
		Str("status", string(state.Status)).
		Bool("is_active", state.IsActive).
		Msg("Fetched membership status")
	return &state, nil
}

// ListClubs returns every club userID belongs to or has asked to join.
func (c *Client) ListClubs(ctx context.Context, userID string) ([]models.UserClub, error) {
	var body struct {
		Clubs []models.UserClub `json:"clubs"`
	}
	if err := c.getJSON(ctx, userID, "/api/v1/clubs", &body); err != nil {
		return nil, fmt.Errorf("list clubs: %w", err)
	}
	return body.Clubs, nil
}

// ListMembers returns the memberships of clubID as seen by userID.
func (c *Client) ListMembers(ctx context.Context, userID, clubID string) ([]models.Membership, error) {
	var body struct {
		Members []models.Membership `json:"members"`
	}
	if err := c.getJSON(ctx, userID, "/api/v1/clubs/"+url.PathEscape(clubID)+"/members", &body); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return body.Members, nil
}

var errNotFound = errors.New("not found")

func (c *Client) getJSON(ctx context.Context, userID, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(realtime.UserHeader, userID)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return errNotFound
	default:
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(data, &body); err != nil {
		body.Error = strings.TrimSpace(string(data))
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: body.Error}
}
