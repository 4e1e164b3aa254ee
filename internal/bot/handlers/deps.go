package handlers

import (
	"log/slog"

	"github.com/chatrecap/chatrecap/internal/config"
	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/scrape"
	"github.com/chatrecap/chatrecap/internal/summarize"
)

// HandlerDeps provides dependencies for Telegram command handlers.
type HandlerDeps struct {
	Logger       *slog.Logger
	Config       *config.Config
	Store        database.Store
	Orchestrator *summarize.Orchestrator

	// Enricher is optional; when nil, linked URLs are stored without
	// scraped content.
	Enricher *scrape.Enricher
}
