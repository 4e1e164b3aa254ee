package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/chatrecap/chatrecap/internal/summarize"
)

const dailySummaryHours = 24

// newDailySummaryTask creates the scheduled task that posts a daily digest
// into every channel with recent activity, then prunes messages past the
// retention horizon. Retention only runs after a fully successful pass so
// a failed channel's history stays available for a retry.
func newDailySummaryTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "daily_summary")

	return func(ctx context.Context) error {
		startTime := time.Now()

		channels := deps.Store.GetActiveChannels(ctx, dailySummaryHours)
		if len(channels) == 0 {
			log.InfoContext(ctx, "No active channels, skipping daily summary")
			return nil
		}
		log.InfoContext(ctx, "Starting daily summary pass", "channels", len(channels))

		var failures int
		for _, ch := range channels {
			if ctx.Err() != nil {
				return fmt.Errorf("daily summary pass interrupted: %w", ctx.Err())
			}

			outcome := deps.Orchestrator.Run(ctx, summarize.Request{
				ChannelID:    ch.ChannelID,
				ChannelName:  ch.ChannelName,
				GuildID:      ch.GuildID,
				GuildName:    ch.GuildName,
				Hours:        dailySummaryHours,
				CreateThread: true,
			})

			switch outcome.Kind {
			case summarize.OutcomeSuccess, summarize.OutcomeNoMessages:
				log.DebugContext(ctx, "Channel summarized", "channel_id", ch.ChannelID, "outcome", outcome.Kind.String())
			default:
				failures++
				log.WarnContext(ctx, "Channel summary did not complete", "channel_id", ch.ChannelID, "outcome", outcome.Kind.String())
			}
		}

		duration := time.Since(startTime)

		if failures > 0 {
			log.WarnContext(ctx, "Daily summary pass finished with failures, skipping retention sweep",
				"failures", failures, "channels", len(channels), "duration", duration)
			return fmt.Errorf("daily summary pass had %d failed channels", failures)
		}

		cutoff := time.Now().UTC().Add(-time.Duration(deps.Config.Summary.RetentionHours) * time.Hour)
		deleted, err := deps.Store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Retention sweep failed", "error", err, "cutoff", cutoff)
			return fmt.Errorf("retention sweep failed: %w", err)
		}

		log.InfoContext(ctx, "Daily summary pass completed",
			"channels", len(channels), "pruned_messages", deleted, "duration", duration)
		return nil
	}
}
