package tasks

import (
	"context"
)

// newLimiterGCTask creates the scheduled task that drops rate limiter state
// for users who have been inactive long enough that none of their history
// can influence an admission decision.
func newLimiterGCTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "limiter_gc")

	return func(ctx context.Context) error {
		purged := deps.Limiter.PurgeInactive()
		if purged > 0 {
			log.InfoContext(ctx, "Purged inactive rate limiter entries", "purged", purged)
		} else {
			log.DebugContext(ctx, "No inactive rate limiter entries to purge")
		}
		return nil
	}
}
