// Package tasks implements the bot's scheduled background work: daily
// channel digests, rate limiter state cleanup, and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/chatrecap/chatrecap/internal/config"
	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/ratelimit"
	"github.com/chatrecap/chatrecap/internal/summarize"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger       *slog.Logger
	Store        database.Store
	Orchestrator *summarize.Orchestrator
	Limiter      *ratelimit.Limiter
	Config       *config.Config
}
