// Package ratelimit throttles club join requests.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const cleanupInterval = 5 * time.Minute

// Config holds rate limit configuration.
type Config struct {
	// Join request limits
	JoinCooldown     time.Duration // Minimum time between join requests per user (default: 10s)
	JoinMaxPerHour   int           // Max join requests per user per hour (default: 10)
	JoinMaxIPPerHour int           // Max join requests per IP per hour (default: 30)

	// Join code guessing
	CodeMaxFailures int           // Wrong join codes before lockout (default: 5)
	CodeLockout     time.Duration // Lockout duration after max failures (default: 15m)

	// Clock drives windows and the cleanup ticker (nil uses real time)
	Clock clockwork.Clock
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig() *Config {
	return &Config{
		JoinCooldown:     10 * time.Second,
		JoinMaxPerHour:   10,
		JoinMaxIPPerHour: 30,
		CodeMaxFailures:  5,
		CodeLockout:      15 * time.Minute,
	}
}

// LimitResult contains the result of a rate limit check.
type LimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
	Reason     string // For logging
}

// entry tracks request counts and timestamps.
type entry struct {
	count    int
	firstAt  time.Time // First request in window
	lastAt   time.Time // Most recent request (for cooldown)
	lockedAt time.Time // When lockout started (zero if not locked)
}

// Limiter implements multi-layer rate limiting for join requests.
type Limiter struct {
	config *Config
	clock  clockwork.Clock
	mu     sync.RWMutex
	// Keyed by hash of user id or IP
	joinByUser  map[string]*entry
	joinByIP    map[string]*entry
	codeFailure map[string]*entry

	// Cleanup goroutine management
	cleanupCtx    context.Context
	cleanupCancel context.CancelFunc
	cleanupOnce   sync.Once
	cleanupWg     sync.WaitGroup
}

// New creates a new rate limiter with the given config.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Limiter{
		config:        cfg,
		clock:         clock,
		joinByUser:    make(map[string]*entry),
		joinByIP:      make(map[string]*entry),
		codeFailure:   make(map[string]*entry),
		cleanupCtx:    ctx,
		cleanupCancel: cancel,
	}
}

// Close stops the cleanup goroutine and releases resources.
func (l *Limiter) Close() {
	l.cleanupCancel()
	l.cleanupWg.Wait()
}

// CheckJoin checks if a join request is allowed.
// Does NOT record the attempt - call RecordJoin once the request is processed.
func (l *Limiter) CheckJoin(userID, ip string) LimitResult {
	l.startCleanup()
	now := l.clock.Now()
	userKey := l.hashKey("join:user:", normalizeIdentifier(userID))
	ipKey := l.hashKey("join:ip:", ip)
	codeKey := l.hashKey("code:user:", normalizeIdentifier(userID))

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Wrong join codes lock the user out of every club
	if e := l.codeFailure[codeKey]; e != nil && !e.lockedAt.IsZero() {
		elapsed := now.Sub(e.lockedAt)
		if elapsed < l.config.CodeLockout {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.CodeLockout - elapsed,
				Reason:     "lockout",
			}
		}
	}

	if e := l.joinByUser[userKey]; e != nil {
		elapsed := now.Sub(e.lastAt)
		if elapsed < l.config.JoinCooldown {
			return LimitResult{
				Allowed:    false,
				RetryAfter: l.config.JoinCooldown - elapsed,
				Reason:     "cooldown",
			}
		}

		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.JoinMaxPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "hourly_limit",
			}
		}
	}

	if e := l.joinByIP[ipKey]; e != nil {
		if now.Sub(e.firstAt) < time.Hour && e.count >= l.config.JoinMaxIPPerHour {
			return LimitResult{
				Allowed:    false,
				RetryAfter: time.Hour - now.Sub(e.firstAt),
				Reason:     "ip_hourly_limit",
			}
		}
	}

	return LimitResult{Allowed: true}
}

// RecordJoin records a processed join request, successful or not.
func (l *Limiter) RecordJoin(userID, ip string) {
	now := l.clock.Now()
	userKey := l.hashKey("join:user:", normalizeIdentifier(userID))
	ipKey := l.hashKey("join:ip:", ip)

	l.mu.Lock()
	defer l.mu.Unlock()

	record(l.joinByUser, userKey, now)
	record(l.joinByIP, ipKey, now)
}

// RecordFailedCode records a wrong join code.
// Returns true if max failures reached and lockout was triggered.
func (l *Limiter) RecordFailedCode(userID string) (lockedOut bool) {
	now := l.clock.Now()
	codeKey := l.hashKey("code:user:", normalizeIdentifier(userID))

	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.codeFailure[codeKey]
	switch {
	case e == nil:
		e = &entry{count: 1, firstAt: now, lastAt: now}
		l.codeFailure[codeKey] = e
	case !e.lockedAt.IsZero() && now.Sub(e.lockedAt) >= l.config.CodeLockout:
		// Lockout expired, reset
		e = &entry{count: 1, firstAt: now, lastAt: now}
		l.codeFailure[codeKey] = e
	default:
		e.count++
		e.lastAt = now
	}

	if e.count >= l.config.CodeMaxFailures && e.lockedAt.IsZero() {
		e.lockedAt = now
		lockedOut = true
	}
	return lockedOut
}

// ResetFailedCodes clears the failure counter after a correct join code.
func (l *Limiter) ResetFailedCodes(userID string) {
	codeKey := l.hashKey("code:user:", normalizeIdentifier(userID))
	l.mu.Lock()
	delete(l.codeFailure, codeKey)
	l.mu.Unlock()
}

func record(entries map[string]*entry, key string, now time.Time) {
	e := entries[key]
	if e == nil || now.Sub(e.firstAt) >= time.Hour {
		entries[key] = &entry{count: 1, firstAt: now, lastAt: now}
		return
	}
	e.count++
	e.lastAt = now
}

func (l *Limiter) hashKey(prefix, value string) string {
	hash := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(hash[:8])
}

// normalizeIdentifier lowercases the identifier to prevent case-based bypass.
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func (l *Limiter) startCleanup() {
	l.cleanupOnce.Do(func() {
		l.cleanupWg.Add(1)
		go func() {
			defer l.cleanupWg.Done()
			ticker := l.clock.NewTicker(cleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-l.cleanupCtx.Done():
					return
				case <-ticker.Chan():
					l.cleanup()
				}
			}
		}()
	})
}

func (l *Limiter) cleanup() {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.joinByUser {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.joinByUser, k)
		}
	}
	for k, e := range l.joinByIP {
		if now.Sub(e.lastAt) > time.Hour {
			delete(l.joinByIP, k)
		}
	}

	// Failure counters outlive the lockout by an hour
	maxAge := l.config.CodeLockout + time.Hour
	for k, e := range l.codeFailure {
		if now.Sub(e.lastAt) > maxAge {
			delete(l.codeFailure, k)
		}
	}
}

// SanitizeIdentifier masks a user id for logging.
func SanitizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if len(identifier) > 4 {
		return identifier[:4] + "***"
	}
	return "***"
}

// LogRateLimitExceeded logs a rate limit event with sanitized identifier.
func LogRateLimitExceeded(limitType, identifier, ip, reason string) {
	log.Warn().
		Str("event", "rate_limit_exceeded").
		Str("type", limitType).
		Str("identifier", SanitizeIdentifier(identifier)).
		Str("ip", ip).
		Str("reason", reason).
		Msg("Join rate limit exceeded")
}
