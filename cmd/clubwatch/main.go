// cmd/clubwatch/main.go
//
// clubwatch follows one user's active club from the command line. It keeps a
// local query cache in step with the server and exits as soon as the user's
// membership in the club is revoked.
//
// Signals: SIGUSR1 behaves like the app regaining focus (immediate check),
// SIGUSR2 toggles offline mode, SIGHUP refreshes the club views and logs
// cache statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/VolleySmart/internal/apiclient"
	"github.com/codr1/VolleySmart/internal/clubctx"
	"github.com/codr1/VolleySmart/internal/livesync"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/realtime"
)

const (
	exitEvicted     = 3
	refreshInterval = 15 * time.Second
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "VolleySmart server base URL")
		userID    = flag.String("user", os.Getenv("VOLLEYSMART_USER"), "user id sent as "+realtime.UserHeader)
		clubID    = flag.String("club", "", "club to watch (defaults to the last watched club)")
		statePath = flag.String("state", defaultStatePath(), "file remembering the last watched club")
		strict    = flag.Bool("strict", false, "evict on any failed membership check")
		debug     = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	persister := fileState{path: *statePath}
	if *clubID == "" {
		*clubID = persister.LastClub()
	}
	if strings.TrimSpace(*userID) == "" || *clubID == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := log.With().Str("component", "clubwatch").Str("user_id", *userID).Str("club_id", *clubID).Logger()

	evicted := make(chan string, 1)
	selection := clubctx.NewSelection(
		clubctx.WithPersister(persister),
		clubctx.WithEvictHook(func(_, reason string) {
			select {
			case evicted <- reason:
			default:
			}
		}),
	)
	selection.Select(*clubID)

	cache := querycache.New()
	// Event streams must not carry a client timeout.
	feed := realtime.NewHTTPFeed(*serverURL, *userID, &http.Client{})
	checker := apiclient.New(*serverURL, nil)

	watcher, err := livesync.New(livesync.Options{
		Feed:       feed,
		Checker:    checker,
		Cache:      cache,
		Evictor:    selection,
		Logger:     &logger,
		StrictPoll: *strict,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to set up live sync")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx)

	if err := startWithRetry(ctx, watcher, *userID, *clubID); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Fatal().Err(err).Msg("Failed to start live sync")
	}
	defer watcher.Stop()

	views := &clubViews{cache: cache, reader: checker, userID: *userID, clubID: *clubID}
	refresh := func() {
		if _, err := views.refresh(ctx); err != nil && ctx.Err() == nil {
			logger.Warn().Err(err).Msg("Failed to refresh club views")
		}
	}
	refresh()
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGHUP)
	defer signal.Stop(signals)

	online := true
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Stopping")
			return
		case reason := <-evicted:
			logger.Warn().Str("reason", reason).Str("view", string(selection.View())).Msg("Membership revoked, leaving club")
			watcher.Stop()
			os.Exit(exitEvicted)
		case <-ticker.C:
			refresh()
		case sig := <-signals:
			switch sig {
			case syscall.SIGUSR1:
				logger.Info().Msg("Focus regained, checking membership")
				watcher.Focus()
			case syscall.SIGUSR2:
				online = !online
				watcher.SetOnline(online)
				logger.Info().Bool("online", online).Msg("Connectivity changed")
			case syscall.SIGHUP:
				refresh()
				stats := cache.Stats()
				logger.Info().
					Int("entries", stats.Entries).
					Int("stale", stats.Stale).
					Str("state", watcher.State().String()).
					Msg("Cache statistics")
			}
		}
	}
}

// startWithRetry keeps trying to open the event streams while the server is
// unreachable.
func startWithRetry(ctx context.Context, watcher *livesync.Sync, userID, clubID string) error {
	delay := time.Second
	for {
		err := watcher.Start(ctx, userID, clubID)
		if err == nil {
			return nil
		}
		log.Ctx(ctx).Warn().Err(err).Dur("retry_in", delay).Msg("Live sync start failed")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 30*time.Second)
	}
}
