// Package summarize implements the message-history summarization pipeline:
// admission, time-windowed retrieval, transcript enrichment, the external
// summarizer call, chunked delivery, and at-most-once persistence of the
// result.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatrecap/chatrecap/internal/chunk"
	"github.com/chatrecap/chatrecap/internal/config"
	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/gemini"
	"github.com/chatrecap/chatrecap/internal/ratelimit"
)

const defaultDeliverTimeout = 15 * time.Second

// ChannelRef addresses a delivery target: a channel, optionally narrowed to
// a thread inside it.
type ChannelRef struct {
	ChannelID string
	ThreadID  string
}

// Deliverer hands summary chunks to the chat transport. CreateThread may
// fail on transports or channels without thread support; the orchestrator
// then degrades to delivering into the parent channel.
type Deliverer interface {
	Deliver(ctx context.Context, ref ChannelRef, text string) error
	CreateThread(ctx context.Context, ref ChannelRef, name string) (ChannelRef, error)
}

// AdmissionChecker is the slice of the rate limiter the orchestrator needs.
type AdmissionChecker interface {
	Check(userID string) ratelimit.Decision
}

// Request describes one summarization invocation.
type Request struct {
	ChannelID   string
	ChannelName string
	GuildID     string
	GuildName   string

	// RequestedBy is the requesting user for manual runs; scheduled runs
	// leave it empty, which bypasses the admission gate.
	RequestedBy string

	Hours     int
	Reference time.Time // zero means "now"

	// CreateThread asks for the summary to be delivered into a fresh
	// discussion thread when the transport supports it.
	CreateThread bool
}

// Orchestrator drives summarization runs. Every dependency is required at
// construction; a missing collaborator is a programming error surfaced
// immediately, not a per-call check.
type Orchestrator struct {
	logger     *slog.Logger
	store      database.Store
	summarizer gemini.Summarizer
	deliverer  Deliverer
	limiter    AdmissionChecker

	maxHours         int
	chunkMaxLength   int
	summarizeTimeout time.Duration
	deliverTimeout   time.Duration
	msgs             config.MessagesConfig

	now func() time.Time
}

// New constructs an Orchestrator, validating that every collaborator is
// present.
func New(
	logger *slog.Logger,
	store database.Store,
	summarizer gemini.Summarizer,
	deliverer Deliverer,
	limiter AdmissionChecker,
	summaryCfg config.SummaryConfig,
	geminiTimeout time.Duration,
	msgs config.MessagesConfig,
) (*Orchestrator, error) {
	switch {
	case store == nil:
		return nil, fmt.Errorf("summarize: store is required")
	case summarizer == nil:
		return nil, fmt.Errorf("summarize: summarizer is required")
	case deliverer == nil:
		return nil, fmt.Errorf("summarize: deliverer is required")
	case limiter == nil:
		return nil, fmt.Errorf("summarize: rate limiter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxHours := summaryCfg.MaxHours
	if maxHours <= 0 {
		maxHours = 168
	}
	chunkMax := summaryCfg.ChunkMaxLength
	if chunkMax <= 0 {
		chunkMax = chunk.DefaultMaxLength
	}
	if geminiTimeout <= 0 {
		geminiTimeout = 2 * time.Minute
	}

	return &Orchestrator{
		logger:           logger.With("component", "summarize"),
		store:            store,
		summarizer:       summarizer,
		deliverer:        deliverer,
		limiter:          limiter,
		maxHours:         maxHours,
		chunkMaxLength:   chunkMax,
		summarizeTimeout: geminiTimeout,
		deliverTimeout:   defaultDeliverTimeout,
		msgs:             msgs,
		now:              time.Now,
	}, nil
}

// Run executes one summarization run to its terminal state. It never
// returns an error: every failure mode maps to an Outcome whose
// UserMessage is safe to show in chat.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID, "channel_id", req.ChannelID, "hours", req.Hours, "requested_by", req.RequestedBy)

	// Entry guard: hours must be a positive integer within the cap.
	if req.Hours <= 0 || req.Hours > o.maxHours {
		log.InfoContext(ctx, "Rejecting summarization request with invalid hours")
		return Outcome{
			Kind:        OutcomeInvalidHours,
			UserMessage: fmt.Sprintf(o.msgs.InvalidHours, o.maxHours),
		}
	}

	// Admission gate for user-initiated runs. Scheduled ticks carry no
	// requesting user and are not throttled.
	if req.RequestedBy != "" {
		decision := o.limiter.Check(req.RequestedBy)
		if !decision.Allowed {
			log.InfoContext(ctx, "Summarization request rate limited",
				"reason", decision.Reason, "wait", decision.Wait)
			return Outcome{
				Kind:        OutcomeRateLimited,
				UserMessage: fmt.Sprintf(o.msgs.RateLimited, decision.Wait.Seconds()),
				Wait:        decision.Wait,
			}
		}
	}

	reference := req.Reference
	if reference.IsZero() {
		reference = o.now()
	}

	messages := o.store.GetMessagesForWindow(ctx, req.ChannelID, reference, req.Hours)
	if len(messages) == 0 {
		log.InfoContext(ctx, "No messages in window, nothing to summarize")
		return Outcome{
			Kind:        OutcomeNoMessages,
			UserMessage: fmt.Sprintf(o.msgs.NoMessages, req.Hours),
		}
	}

	tr := buildTranscript(messages)
	if tr.messageCount == 0 {
		// The window held only command messages.
		log.InfoContext(ctx, "Window contains no summarizable messages", "fetched", len(messages))
		return Outcome{
			Kind:        OutcomeNoMessages,
			UserMessage: fmt.Sprintf(o.msgs.NoMessages, req.Hours),
		}
	}
	log.DebugContext(ctx, "Transcript built", "message_count", tr.messageCount, "active_users", len(tr.activeUsers))

	windowStart := reference.Add(-time.Duration(req.Hours) * time.Hour)

	summarizeCtx, cancel := context.WithTimeout(ctx, o.summarizeTimeout)
	summaryText, err := o.summarizer.Summarize(summarizeCtx, tr.text, req.ChannelName, windowStart, req.Hours)
	cancel()
	if err != nil || summaryText == "" {
		log.ErrorContext(ctx, "Summarizer failed", "error", err)
		return Outcome{
			Kind:        OutcomeFailed,
			UserMessage: o.msgs.SummaryFailed,
		}
	}

	chunks := chunk.Split(summaryText, o.chunkMaxLength)

	delivered := o.deliver(ctx, log, req, reference, chunks)

	persisted := o.persist(ctx, log, req, reference, runID, summaryText, tr)

	outcome := Outcome{Kind: OutcomeSuccess, MessageCount: tr.messageCount}
	if !delivered || !persisted {
		outcome.Kind = OutcomePartial
		outcome.UserMessage = o.msgs.GeneralError
	}
	log.InfoContext(ctx, "Summarization run finished",
		"outcome", outcome.Kind.String(),
		"message_count", tr.messageCount,
		"chunks", len(chunks),
		"delivered", delivered,
		"persisted", persisted)
	return outcome
}

// deliver sends chunks in order, one at a time, optionally into a fresh
// thread. Thread creation failure degrades to the parent channel; a chunk
// send failure stops further sends for this run. Returns whether every
// chunk was delivered.
func (o *Orchestrator) deliver(ctx context.Context, log *slog.Logger, req Request, reference time.Time, chunks []string) bool {
	target := ChannelRef{ChannelID: req.ChannelID}

	if req.CreateThread {
		name := fmt.Sprintf("Summary %s (%dh)", reference.UTC().Format(database.DateLayout), req.Hours)
		threadCtx, cancel := context.WithTimeout(ctx, o.deliverTimeout)
		threadRef, err := o.deliverer.CreateThread(threadCtx, target, name)
		cancel()
		if err != nil {
			log.WarnContext(ctx, "Thread creation failed, delivering into channel", "error", err)
		} else {
			target = threadRef
		}
	}

	for i, piece := range chunks {
		sendCtx, cancel := context.WithTimeout(ctx, o.deliverTimeout)
		err := o.deliverer.Deliver(sendCtx, target, piece)
		cancel()
		if err != nil {
			log.ErrorContext(ctx, "Chunk delivery failed", "chunk", i+1, "total", len(chunks), "error", err)
			return false
		}
	}
	return true
}

// persist records the run's summary. Failure is logged only: the user
// already received the summary, and that is not rolled back or retried.
func (o *Orchestrator) persist(ctx context.Context, log *slog.Logger, req Request, reference time.Time, runID, summaryText string, tr transcript) bool {
	summary := &database.ChannelSummary{
		ChannelID:    req.ChannelID,
		ChannelName:  req.ChannelName,
		GuildID:      req.GuildID,
		GuildName:    req.GuildName,
		Date:         reference.UTC().Format(database.DateLayout),
		SummaryText:  summaryText,
		MessageCount: tr.messageCount,
		ActiveUsers:  tr.activeUsers,
		CreatedAt:    o.now(),
		Metadata: map[string]any{
			"hours_summarized": req.Hours,
			"requested_by":     req.RequestedBy,
			"run_id":           runID,
		},
	}

	if err := o.store.StoreChannelSummary(ctx, summary); err != nil {
		log.ErrorContext(ctx, "Failed to persist channel summary after delivery", "error", err)
		return false
	}
	return true
}
