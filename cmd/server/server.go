// cmd/server/server.go
package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/api"
	"github.com/codr1/VolleySmart/internal/api/clubs"
	"github.com/codr1/VolleySmart/internal/api/events"
	"github.com/codr1/VolleySmart/internal/api/matchdays"
	"github.com/codr1/VolleySmart/internal/config"
	"github.com/codr1/VolleySmart/internal/db"
	"github.com/codr1/VolleySmart/internal/matchday"
	"github.com/codr1/VolleySmart/internal/membership"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/ratelimit"
	"github.com/codr1/VolleySmart/internal/realtime"
	"github.com/codr1/VolleySmart/internal/scheduler"
)

type app struct {
	server    *http.Server
	db        *db.DB
	hub       *realtime.Hub
	limiter   *ratelimit.Limiter
	scheduler *scheduler.Service
}

func newApp(cfg *config.Config) (*app, error) {
	database, err := db.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{db: database}

	a.hub = realtime.NewHub(cfg.Sync.HubBuffer)
	cache := querycache.New()
	// Server-side reads are cached too, so every committed change clears the
	// affected entries before it reaches subscribers.
	publisher := querycache.Publisher{Cache: cache, Next: a.hub}

	a.limiter = ratelimit.New(&ratelimit.Config{
		JoinCooldown:     cfg.RateLimit.JoinCooldown,
		JoinMaxPerHour:   cfg.RateLimit.JoinMaxPerHour,
		JoinMaxIPPerHour: cfg.RateLimit.JoinMaxIPPerHour,
		CodeMaxFailures:  cfg.RateLimit.CodeMaxFailures,
		CodeLockout:      cfg.RateLimit.CodeLockout,
	})

	members, err := membership.NewService(database, publisher, membership.WithLimiter(a.limiter))
	if err != nil {
		a.Close()
		return nil, err
	}
	days, err := matchday.NewService(database, publisher, cache)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Scheduler.Enabled {
		a.scheduler, err = scheduler.New()
		if err != nil {
			a.Close()
			return nil, err
		}
		if _, err := scheduler.RegisterMembershipExpiryJob(a.scheduler, members, cfg.Scheduler.MembershipExpiry, cfg.Scheduler.PendingRequestTTL); err != nil {
			a.Close()
			return nil, err
		}
		a.scheduler.Start()
	}

	router := http.NewServeMux()
	if err := registerRoutes(router, cfg, members, days, a.hub, cache); err != nil {
		a.Close()
		return nil, err
	}

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithUser,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	a.server = &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func registerRoutes(mux *http.ServeMux, cfg *config.Config, members *membership.Service, days *matchday.Service, hub *realtime.Hub, cache *querycache.Cache) error {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	clubHandlers, err := clubs.NewHandlers(members, cache, clubs.WithTrustedProxy(cfg.App.TrustProxy))
	if err != nil {
		return err
	}
	clubHandlers.Register(mux)

	matchDayHandlers, err := matchdays.NewHandlers(days, members)
	if err != nil {
		return err
	}
	matchDayHandlers.Register(mux)

	eventHandlers, err := events.NewHandlers(hub, members, cfg.Sync.Heartbeat)
	if err != nil {
		return err
	}
	eventHandlers.Register(mux)

	log.Info().Msg("Routes registered")
	return nil
}

// Close stops background work and closes the database.
func (a *app) Close() {
	if a.scheduler != nil {
		if err := a.scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
}
