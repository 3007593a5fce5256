package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// UserHeader carries the authenticated user id set by the auth proxy.
const UserHeader = "X-User-ID"

// HTTPFeed subscribes to a VolleySmart server's event stream endpoints.
// Club-scoped filters use the club stream, user-scoped filters the caller's
// own stream.
type HTTPFeed struct {
	baseURL string
	userID  string
	client  *http.Client
}

func NewHTTPFeed(baseURL, userID string, client *http.Client) *HTTPFeed {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  userID,
		client:  client,
	}
}

type httpStream struct {
	ch     chan Event
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

func (s *httpStream) Events() <-chan Event { return s.ch }

func (s *httpStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

func (f *HTTPFeed) Subscribe(ctx context.Context, filter Filter) (Stream, error) {
	endpoint := f.baseURL + "/api/v1/events"
	if filter.ClubID != "" {
		endpoint = f.baseURL + "/api/v1/clubs/" + url.PathEscape(filter.ClubID) + "/events"
	}
	if len(filter.Entities) > 0 {
		endpoint += "?entities=" + url.QueryEscape(joinEntities(filter.Entities))
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build event stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(UserHeader, f.userID)

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open event stream: unexpected status %d", resp.StatusCode)
	}

	stream := &httpStream{
		ch:     make(chan Event, defaultSubscriberBuffer),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	logger := log.Ctx(ctx).With().Str("component", "realtime_http_feed").Str("endpoint", endpoint).Logger()

	go func() {
		defer close(stream.done)
		defer close(stream.ch)
		defer resp.Body.Close()

		err := ReadSSE(resp.Body, func(ev Event) error {
			if !filter.Match(ev) {
				return nil
			}
			select {
			case stream.ch <- ev:
				return nil
			case <-streamCtx.Done():
				return streamCtx.Err()
			}
		}, func(err error) {
			logger.Warn().Err(err).Msg("Skipping undecodable event")
		})
		if err != nil && streamCtx.Err() == nil {
			logger.Warn().Err(err).Msg("Event stream ended")
		}
	}()

	return stream, nil
}
