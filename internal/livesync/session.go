package livesync

import (
	"context"
	"errors"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/codr1/VolleySmart/internal/models"
	"github.com/codr1/VolleySmart/internal/querycache"
	"github.com/codr1/VolleySmart/internal/realtime"
)

// Eviction reasons passed to the Evictor.
const (
	ReasonMembershipDeactivated = "membership_deactivated"
	ReasonMembershipRejected    = "membership_rejected"
	ReasonMembershipDeleted     = "membership_deleted"
	ReasonMembershipMissing     = "membership_missing"
	ReasonMembershipInactive    = "membership_inactive"
	ReasonVerificationFailed    = "verification_failed"
)

type checkOutcome int

const (
	checkQuiet checkOutcome = iota
	checkTransient
	checkEvicted
	checkAbandoned
)

// session is one watched (user, club) pair. All fields below the channels are
// owned by the run goroutine.
type session struct {
	sync   *Sync
	userID string
	clubID string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	focus  chan struct{}

	userStream realtime.Stream
	clubStream realtime.Stream

	backoff *backoff
	logger  zerolog.Logger
}

func (ss *session) shutdown() {
	if ss == nil {
		return
	}
	ss.cancel()
	<-ss.done
	ss.logger.Info().Msg("Live membership sync stopped")
}

func (ss *session) run() {
	defer close(ss.done)
	defer ss.sync.release(ss)
	defer ss.clubStream.Close()
	defer ss.userStream.Close()
	defer ss.cancel()

	opts := ss.sync.opts
	userEvents := ss.userStream.Events()
	clubEvents := ss.clubStream.Events()
	timer := opts.Clock.NewTimer(opts.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ss.ctx.Done():
			return

		case ev, ok := <-userEvents:
			if !ok {
				ss.logger.Warn().Msg("User change stream closed, relying on polling")
				userEvents = nil
				continue
			}
			if ss.handleEvent(ev) {
				return
			}

		case ev, ok := <-clubEvents:
			if !ok {
				ss.logger.Warn().Msg("Club change stream closed, relying on polling")
				clubEvents = nil
				continue
			}
			if ss.handleEvent(ev) {
				return
			}

		case <-ss.focus:
			stopTimer(timer)
			ss.backoff.reset()
			ss.logger.Debug().Msg("Focus regained, verifying membership")
			switch ss.verify() {
			case checkEvicted, checkAbandoned:
				return
			case checkTransient:
				timer.Reset(ss.backoff.current())
			default:
				timer.Reset(ss.backoff.next())
			}

		case <-timer.Chan():
			if !ss.sync.online.Load() {
				ss.logger.Debug().Dur("retry_in", ss.backoff.current()).Msg("Offline, skipping membership check")
				timer.Reset(ss.backoff.current())
				continue
			}
			switch ss.verify() {
			case checkEvicted, checkAbandoned:
				return
			case checkTransient:
				timer.Reset(ss.backoff.current())
			default:
				timer.Reset(ss.backoff.next())
			}
		}
	}
}

func stopTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

// handleEvent invalidates the families the change touches and evicts when the
// change revokes the user's membership in the active club. It reports
// whether the session ended.
func (ss *session) handleEvent(ev realtime.Event) bool {
	clubID := ev.ClubID()
	invalidated := ss.sync.opts.Cache.Invalidate(querycache.InvalidationFor(clubID))
	ss.logger.Debug().
		Str("entity", string(ev.Entity)).
		Str("change", string(ev.Type)).
		Str("event_club_id", clubID).
		Int("invalidated", invalidated).
		Msg("Applied change notification")

	if reason, revoked := ss.revocation(ev); revoked {
		ss.evict(reason)
		return true
	}
	return false
}

func (ss *session) revocation(ev realtime.Event) (string, bool) {
	oldRow, newRow := ev.Memberships()
	row := newRow
	if row == nil {
		row = oldRow
	}
	if row == nil || row.UserID != ss.userID || row.ClubID != ss.clubID {
		return "", false
	}

	switch {
	case ev.Type == realtime.ChangeDelete:
		return ReasonMembershipDeleted, true
	case newRow == nil:
		return "", false
	case newRow.Status == models.MembershipRejected:
		return ReasonMembershipRejected, true
	case oldRow != nil && oldRow.IsActive && !newRow.IsActive:
		return ReasonMembershipDeactivated, true
	}
	return "", false
}

func (ss *session) verify() checkOutcome {
	opts := ss.sync.opts
	ctx, cancel := context.WithTimeout(ss.ctx, opts.CheckTimeout)
	state, err := opts.Checker.MembershipStatus(ctx, ss.userID, ss.clubID)
	cancel()

	if ss.ctx.Err() != nil {
		return checkAbandoned
	}

	switch {
	case errors.Is(err, models.ErrMembershipNotFound), err == nil && state == nil:
		ss.evict(ReasonMembershipMissing)
		return checkEvicted
	case err != nil:
		if opts.StrictPoll {
			ss.logger.Warn().Err(err).Msg("Membership check failed, evicting")
			ss.evict(ReasonVerificationFailed)
			return checkEvicted
		}
		ss.logger.Warn().Err(err).Dur("retry_in", ss.backoff.current()).Msg("Membership check failed, keeping access")
		return checkTransient
	case !state.Allowed():
		ss.logger.Info().
			Str("status", string(state.Status)).
			Bool("is_active", state.IsActive).
			Msg("Membership no longer active")
		ss.evict(ReasonMembershipInactive)
		return checkEvicted
	}
	return checkQuiet
}

func (ss *session) evict(reason string) {
	ss.sync.opts.Evictor.Evict(ss.ctx, reason)
	ss.cancel()
}
