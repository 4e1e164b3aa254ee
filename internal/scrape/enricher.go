// Package scrape wires link enrichment into the message store. Scraping
// sits behind the Scraper interface; this package owns the asynchronous
// queue between message ingestion and the store's scraped-data update,
// plus an HTTP-based scraper backed by the LLM.
package scrape

import (
	"context"
	"log/slog"
	"regexp"
	"time"

	"github.com/chatrecap/chatrecap/internal/database"
)

// Result is what a scraper produces for one URL.
type Result struct {
	Summary   string
	KeyPoints []string
}

// Scraper turns a URL into summary content. WebScraper is the built-in
// implementation; deployments can swap in external services instead.
type Scraper interface {
	Scrape(ctx context.Context, url string) (Result, error)
}

// urlRe matches the first http(s) link in a message body.
var urlRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// ExtractURL returns the first link in content, or "" when there is none.
func ExtractURL(content string) string {
	return urlRe.FindString(content)
}

const (
	queueSize     = 256
	scrapeTimeout = 90 * time.Second
)

type job struct {
	messageID string
	url       string
}

// Enricher consumes queued (message, url) pairs, scrapes them, and writes
// the result back onto the stored message. Enrichment is strictly out of
// band: the summarization pipeline only consumes whatever has landed by the
// time it reads a window.
type Enricher struct {
	store   database.Store
	scraper Scraper
	logger  *slog.Logger
	jobs    chan job
}

// NewEnricher creates an Enricher. A nil scraper is allowed; submissions
// are then dropped, which keeps the bot usable without a scraping backend.
func NewEnricher(store database.Store, scraper Scraper, logger *slog.Logger) *Enricher {
	return &Enricher{
		store:   store,
		scraper: scraper,
		logger:  logger.With("component", "enricher"),
		jobs:    make(chan job, queueSize),
	}
}

// Submit queues a message's link for enrichment. It never blocks: when the
// queue is full or no scraper is configured the job is dropped with a log
// line, since enrichment is best-effort.
func (e *Enricher) Submit(messageID, url string) {
	if e.scraper == nil || url == "" {
		return
	}
	select {
	case e.jobs <- job{messageID: messageID, url: url}:
	default:
		e.logger.Warn("Enrichment queue full, dropping link", "message_id", messageID, "url", url)
	}
}

// Run processes the queue until ctx is cancelled.
func (e *Enricher) Run(ctx context.Context) error {
	e.logger.Info("Link enrichment worker started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Link enrichment worker stopped")
			return ctx.Err()
		case j := <-e.jobs:
			e.process(ctx, j)
		}
	}
}

func (e *Enricher) process(ctx context.Context, j job) {
	scrapeCtx, cancel := context.WithTimeout(ctx, scrapeTimeout)
	defer cancel()

	result, err := e.scraper.Scrape(scrapeCtx, j.url)
	if err != nil {
		e.logger.WarnContext(ctx, "Scrape failed", "message_id", j.messageID, "url", j.url, "error", err)
		return
	}
	if result.Summary == "" {
		e.logger.DebugContext(ctx, "Scrape produced no summary", "message_id", j.messageID, "url", j.url)
		return
	}

	updated, err := e.store.UpdateScrapedData(ctx, j.messageID, j.url, result.Summary, result.KeyPoints)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to store scraped data", "message_id", j.messageID, "error", err)
		return
	}
	if !updated {
		// Message pruned by retention before the scrape finished.
		e.logger.DebugContext(ctx, "Message gone before enrichment landed", "message_id", j.messageID)
		return
	}
	e.logger.InfoContext(ctx, "Message enriched with scraped link content", "message_id", j.messageID, "url", j.url)
}
