package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

const (
	MembershipExpiryJobName = "expire_pending_memberships"
	membershipExpiryTimeout = 2 * time.Minute
)

// PendingExpirer rejects join requests that have waited longer than ttl.
type PendingExpirer interface {
	ExpireStalePending(ctx context.Context, ttl time.Duration) (int, error)
}

// RegisterMembershipExpiryJob schedules the sweep of stale pending join requests.
func RegisterMembershipExpiryJob(svc *Service, expirer PendingExpirer, cronExpr string, ttl time.Duration) (gocron.Job, error) {
	if svc == nil {
		return nil, ErrNotInitialized
	}
	if expirer == nil {
		return nil, fmt.Errorf("membership expiry job requires an expirer")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("membership expiry ttl must be positive, got %s", ttl)
	}

	jobLogger := log.With().
		Str("component", "membership_expiry_job").
		Str("job_name", MembershipExpiryJobName).
		Str("cron", cronExpr).
		Dur("ttl", ttl).
		Logger()

	job, err := svc.AddJob(MembershipExpiryJobName, cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), membershipExpiryTimeout)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		expired, err := expirer.ExpireStalePending(ctx, ttl)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to expire pending memberships")
			return
		}
		if expired > 0 {
			jobLogger.Info().Int("expired", expired).Msg("Expired stale join requests")
		}
	}, gocron.WithSingletonMode(gocron.LimitModeWait))
	if err != nil {
		return nil, fmt.Errorf("add membership expiry job: %w", err)
	}

	jobLogger.Info().Msg("Membership expiry job registered")
	return job, nil
}
