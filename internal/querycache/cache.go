// Package querycache holds fetched query results keyed by (family, scope).
// Values are only written by Fetch; invalidators mark entries stale and the
// next Fetch refills them.
package querycache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	FamilyMemberships     = "memberships"
	FamilyPendingRequests = "pendingRequests"
	FamilyMatchDays       = "matchDays"
	FamilyMatches         = "matches"
	FamilyTeams           = "teams"
	FamilyScoreboard      = "scoreboard"
	FamilyLeaderboard     = "leaderboard"
	FamilyUserClubs       = "userClubs"
)

// clubFamilies are invalidated only for the club an event belongs to.
var clubFamilies = []string{
	FamilyMemberships,
	FamilyPendingRequests,
	FamilyMatchDays,
	FamilyMatches,
	FamilyTeams,
	FamilyScoreboard,
	FamilyLeaderboard,
}

// InvalidationFor selects the cache entries a change in clubID makes stale.
// The user's club list is refreshed for every change.
func InvalidationFor(clubID string) Predicate {
	return Or(
		FamilyIn(FamilyUserClubs),
		And(
			FamilyIn(clubFamilies...),
			ScopeIncludes(clubID),
		),
	)
}

type Key struct {
	Family string
	Scope  []string
}

func NewKey(family string, scope ...string) Key {
	return Key{Family: family, Scope: scope}
}

func (k Key) String() string {
	if len(k.Scope) == 0 {
		return k.Family
	}
	return k.Family + "|" + strings.Join(k.Scope, "|")
}

func (k Key) ScopeIncludes(id string) bool {
	return slices.Contains(k.Scope, id)
}

// Predicate selects keys for invalidation.
type Predicate func(Key) bool

func FamilyIn(families ...string) Predicate {
	return func(k Key) bool {
		return slices.Contains(families, k.Family)
	}
}

func ScopeIncludes(id string) Predicate {
	return func(k Key) bool {
		return k.ScopeIncludes(id)
	}
}

func And(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, pred := range preds {
			if !pred(k) {
				return false
			}
		}
		return true
	}
}

func Or(preds ...Predicate) Predicate {
	return func(k Key) bool {
		for _, pred := range preds {
			if pred(k) {
				return true
			}
		}
		return false
	}
}

type entry struct {
	key       Key
	value     any
	stale     bool
	fetchedAt time.Time
}

// inflight marks a key whose fetch is running, so an invalidation that lands
// before the result is stored is not lost.
type inflight struct {
	key         Key
	invalidated bool
}

type Cache struct {
	mu       sync.Mutex
	entries  map[string]*entry
	inflight map[string]*inflight
	group    singleflight.Group
	now      func() time.Time
}

func New() *Cache {
	return &Cache{
		entries:  make(map[string]*entry),
		inflight: make(map[string]*inflight),
		now:      time.Now,
	}
}

// Fetch returns the cached value for key, calling fetch when the entry is
// missing or stale. Concurrent fetches of one key share a single call.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	value, err := c.fetch(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("query cache key %s holds %T", key, value)
	}
	return typed, nil
}

func (c *Cache) fetch(ctx context.Context, key Key, fetch func(context.Context) (any, error)) (any, error) {
	id := key.String()

	c.mu.Lock()
	if e, ok := c.entries[id]; ok && !e.stale {
		value := e.value
		c.mu.Unlock()
		return value, nil
	}
	c.mu.Unlock()

	value, err, _ := c.group.Do(id, func() (any, error) {
		c.mu.Lock()
		pending := &inflight{key: key}
		c.inflight[id] = pending
		c.mu.Unlock()

		value, err := fetch(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.inflight, id)
		if err != nil {
			return nil, err
		}
		e, ok := c.entries[id]
		if !ok {
			e = &entry{key: key}
			c.entries[id] = e
		}
		e.value = value
		e.fetchedAt = c.now()
		// An invalidation that landed while fetching keeps the entry stale.
		e.stale = pending.invalidated
		return value, nil
	})
	if err != nil {
		log.Ctx(ctx).Debug().Err(err).Str("cache_key", id).Msg("Query cache fetch failed")
		return nil, err
	}
	return value, nil
}

// Invalidate marks every entry whose key satisfies pred as stale and returns
// how many entries matched.
func (c *Cache) Invalidate(pred Predicate) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.entries {
		if !pred(e.key) {
			continue
		}
		e.stale = true
		count++
	}
	for _, p := range c.inflight {
		if pred(p.key) {
			p.invalidated = true
		}
	}
	return count
}

// Peek returns the cached value without fetching.
func (c *Cache) Peek(key Key) (value any, stale bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false, false
	}
	return e.value, e.stale, true
}

type Stats struct {
	Entries int
	Stale   int
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := Stats{Entries: len(c.entries)}
	for _, e := range c.entries {
		if e.stale {
			stats.Stale++
		}
	}
	return stats
}
