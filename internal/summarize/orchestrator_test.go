package summarize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrecap/chatrecap/internal/config"
	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/ratelimit"
)

type fakeStore struct {
	messages  []*database.Message
	summaries []*database.ChannelSummary

	windowCalls  int
	summaryErr   error
	lastWindowID string
}

func (s *fakeStore) Ping(ctx context.Context) error { return nil }

func (s *fakeStore) StoreMessage(ctx context.Context, message *database.Message) (bool, error) {
	s.messages = append(s.messages, message)
	return true, nil
}

func (s *fakeStore) StoreMessagesBatch(ctx context.Context, messages []*database.Message) (int, error) {
	s.messages = append(s.messages, messages...)
	return len(messages), nil
}

func (s *fakeStore) UpdateScrapedData(ctx context.Context, messageID, url, summary string, keyPoints []string) (bool, error) {
	return true, nil
}

func (s *fakeStore) GetMessagesForWindow(ctx context.Context, channelID string, reference time.Time, hours int) []*database.Message {
	s.windowCalls++
	s.lastWindowID = channelID
	return s.messages
}

func (s *fakeStore) GetActiveChannels(ctx context.Context, hours int) []database.ChannelActivity {
	return nil
}

func (s *fakeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeStore) StoreChannelSummary(ctx context.Context, summary *database.ChannelSummary) error {
	if s.summaryErr != nil {
		return s.summaryErr
	}
	s.summaries = append(s.summaries, summary)
	return nil
}

func (s *fakeStore) RunSQLMaintenance(ctx context.Context) error { return nil }

type fakeSummarizer struct {
	calls  int
	text   string
	err    error
	lastIn string
}

func (f *fakeSummarizer) Summarize(ctx context.Context, transcript, channelName string, windowStart time.Time, hours int) (string, error) {
	f.calls++
	f.lastIn = transcript
	return f.text, f.err
}

type fakeDeliverer struct {
	delivered  []string
	targets    []ChannelRef
	deliverErr error
	failAfter  int

	threadCalls int
	threadErr   error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, ref ChannelRef, text string) error {
	if f.deliverErr != nil && len(f.delivered) >= f.failAfter {
		return f.deliverErr
	}
	f.delivered = append(f.delivered, text)
	f.targets = append(f.targets, ref)
	return nil
}

func (f *fakeDeliverer) CreateThread(ctx context.Context, ref ChannelRef, name string) (ChannelRef, error) {
	f.threadCalls++
	if f.threadErr != nil {
		return ChannelRef{}, f.threadErr
	}
	return ChannelRef{ChannelID: ref.ChannelID, ThreadID: "thread-1"}, nil
}

type fakeLimiter struct {
	calls    int
	decision ratelimit.Decision
}

func (f *fakeLimiter) Check(userID string) ratelimit.Decision {
	f.calls++
	return f.decision
}

func allowAll() *fakeLimiter {
	return &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
}

func testMessages() config.MessagesConfig {
	return config.MessagesConfig{
		InvalidHours:  "Please provide a whole number of hours between 1 and %d.",
		RateLimited:   "You're doing that too often. Try again in %.0f seconds.",
		NoMessages:    "No messages found in the last %d hours, nothing to summarize.",
		SummaryFailed: "An error occurred while generating the summary. Please try again later.",
		GeneralError:  "An error occurred. Please try again later.",
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, store *fakeStore, sum *fakeSummarizer, del *fakeDeliverer, lim *fakeLimiter) *Orchestrator {
	t.Helper()

	o, err := New(
		discardLogger(),
		store,
		sum,
		del,
		lim,
		config.SummaryConfig{MaxHours: 168, ChunkMaxLength: 1900},
		2*time.Minute,
		testMessages(),
	)
	require.NoError(t, err)

	o.now = func() time.Time {
		return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	}
	return o
}

func chatMessage(id, author, content string, at time.Time) *database.Message {
	return &database.Message{
		ID:          id,
		AuthorID:    "u-" + author,
		AuthorName:  author,
		ChannelID:   "chan-1",
		ChannelName: "general",
		Content:     content,
		CreatedAt:   at,
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	store := &fakeStore{}
	sum := &fakeSummarizer{}
	del := &fakeDeliverer{}
	lim := allowAll()
	cfg := config.SummaryConfig{MaxHours: 168}
	msgs := testMessages()

	_, err := New(discardLogger(), nil, sum, del, lim, cfg, time.Minute, msgs)
	assert.Error(t, err)

	_, err = New(discardLogger(), store, nil, del, lim, cfg, time.Minute, msgs)
	assert.Error(t, err)

	_, err = New(discardLogger(), store, sum, nil, lim, cfg, time.Minute, msgs)
	assert.Error(t, err)

	_, err = New(discardLogger(), store, sum, del, nil, cfg, time.Minute, msgs)
	assert.Error(t, err)

	_, err = New(discardLogger(), store, sum, del, lim, cfg, time.Minute, msgs)
	assert.NoError(t, err)
}

func TestRunHappyPath(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "good morning everyone", base),
		chatMessage("m2", "bob", "morning! shipping the release today", base.Add(time.Minute)),
		chatMessage("m3", "carol", "release notes are drafted", base.Add(2*time.Minute)),
	}}
	sum := &fakeSummarizer{text: "The team discussed the release."}
	del := &fakeDeliverer{}
	lim := allowAll()

	o := newTestOrchestrator(t, store, sum, del, lim)

	outcome := o.Run(context.Background(), Request{
		ChannelID:   "chan-1",
		ChannelName: "general",
		RequestedBy: "u-alice",
		Hours:       24,
	})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 3, outcome.MessageCount)
	assert.True(t, outcome.Generated())
	assert.Equal(t, 1, sum.calls)
	assert.Contains(t, sum.lastIn, "alice")
	assert.Equal(t, []string{"The team discussed the release."}, del.delivered)

	require.Len(t, store.summaries, 1)
	saved := store.summaries[0]
	assert.Equal(t, "chan-1", saved.ChannelID)
	assert.Equal(t, 3, saved.MessageCount)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, saved.ActiveUsers)
	assert.Equal(t, "2025-06-15", saved.Date)
	assert.Equal(t, 24, saved.Metadata["hours_summarized"])
	assert.Equal(t, "u-alice", saved.Metadata["requested_by"])
	assert.NotEmpty(t, saved.Metadata["run_id"])
}

func TestRunEmptyWindowSkipsSummarizer(t *testing.T) {
	store := &fakeStore{}
	sum := &fakeSummarizer{text: "should not be called"}
	del := &fakeDeliverer{}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomeNoMessages, outcome.Kind)
	assert.False(t, outcome.Generated())
	assert.Contains(t, outcome.UserMessage, "24")
	assert.Zero(t, sum.calls)
	assert.Empty(t, del.delivered)
	assert.Empty(t, store.summaries)
}

func TestRunCommandOnlyWindowIsNoMessages(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cmd := chatMessage("m1", "alice", "/recap 24", base)
	cmd.IsCommand = true
	cmd.CommandType = "recap"
	store := &fakeStore{messages: []*database.Message{cmd}}
	sum := &fakeSummarizer{text: "unused"}

	o := newTestOrchestrator(t, store, sum, &fakeDeliverer{}, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 6})

	assert.Equal(t, OutcomeNoMessages, outcome.Kind)
	assert.Zero(t, sum.calls)
	assert.Empty(t, store.summaries)
}

func TestRunSummarizerErrorIsFailed(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}
	sum := &fakeSummarizer{err: errors.New("model unavailable")}
	del := &fakeDeliverer{}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomeFailed, outcome.Kind)
	assert.False(t, outcome.Generated())
	assert.NotEmpty(t, outcome.UserMessage)
	assert.Empty(t, del.delivered)
	assert.Empty(t, store.summaries)
}

func TestRunRateLimited(t *testing.T) {
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", time.Now()),
	}}
	sum := &fakeSummarizer{text: "unused"}
	lim := &fakeLimiter{decision: ratelimit.Decision{
		Allowed: false,
		Wait:    7 * time.Second,
		Reason:  ratelimit.ReasonCooldown,
	}}

	o := newTestOrchestrator(t, store, sum, &fakeDeliverer{}, lim)

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomeRateLimited, outcome.Kind)
	assert.Equal(t, 7*time.Second, outcome.Wait)
	assert.Contains(t, outcome.UserMessage, "7 seconds")
	assert.Zero(t, sum.calls)
	assert.Zero(t, store.windowCalls)
}

func TestRunScheduledBypassesLimiter(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}
	sum := &fakeSummarizer{text: "Digest."}
	lim := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, Wait: time.Hour}}

	o := newTestOrchestrator(t, store, sum, &fakeDeliverer{}, lim)

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", Hours: 24})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Zero(t, lim.calls)
}

func TestRunInvalidHours(t *testing.T) {
	store := &fakeStore{}
	sum := &fakeSummarizer{}
	lim := allowAll()

	o := newTestOrchestrator(t, store, sum, &fakeDeliverer{}, lim)

	for _, hours := range []int{0, -5, 169} {
		outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: hours})
		assert.Equal(t, OutcomeInvalidHours, outcome.Kind, "hours=%d", hours)
		assert.Contains(t, outcome.UserMessage, "168")
	}
	assert.Zero(t, lim.calls, "hours guard runs before the admission gate")
	assert.Zero(t, store.windowCalls)
}

func TestRunPersistenceFailureIsPartial(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{
		messages:   []*database.Message{chatMessage("m1", "alice", "hello", base)},
		summaryErr: errors.New("disk full"),
	}
	sum := &fakeSummarizer{text: "Digest."}
	del := &fakeDeliverer{}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomePartial, outcome.Kind)
	assert.True(t, outcome.Generated())
	assert.Equal(t, "An error occurred. Please try again later.", outcome.UserMessage)
	assert.Equal(t, []string{"Digest."}, del.delivered, "delivery happened despite persistence failure")
}

func TestRunDeliveryFailureIsPartial(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}

	var para []string
	for i := 0; i < 4; i++ {
		para = append(para, strings.Repeat(fmt.Sprintf("point %d. ", i), 100))
	}
	sum := &fakeSummarizer{text: strings.Join(para, "\n\n")}
	del := &fakeDeliverer{deliverErr: errors.New("send failed"), failAfter: 1}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomePartial, outcome.Kind)
	assert.NotEmpty(t, outcome.UserMessage, "partial runs carry a user-facing explanation")
	assert.Len(t, del.delivered, 1, "delivery stops at the first failed chunk")
	require.Len(t, store.summaries, 1, "summary is persisted even when delivery was cut short")
}

func TestRunLongSummaryIsChunked(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}
	sum := &fakeSummarizer{text: strings.Repeat("The discussion covered many topics. ", 150)}
	del := &fakeDeliverer{}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", RequestedBy: "u-1", Hours: 24})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	require.Greater(t, len(del.delivered), 1)
	for i, piece := range del.delivered {
		assert.Contains(t, piece, fmt.Sprintf("[Part %d/%d]", i+1, len(del.delivered)))
	}
}

func TestRunCreateThread(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}
	sum := &fakeSummarizer{text: "Digest."}
	del := &fakeDeliverer{}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", Hours: 24, CreateThread: true})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	assert.Equal(t, 1, del.threadCalls)
	require.Len(t, del.targets, 1)
	assert.Equal(t, "thread-1", del.targets[0].ThreadID)
}

func TestRunThreadCreationFailureFallsBackToChannel(t *testing.T) {
	base := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	store := &fakeStore{messages: []*database.Message{
		chatMessage("m1", "alice", "hello", base),
	}}
	sum := &fakeSummarizer{text: "Digest."}
	del := &fakeDeliverer{threadErr: errors.New("threads not supported")}

	o := newTestOrchestrator(t, store, sum, del, allowAll())

	outcome := o.Run(context.Background(), Request{ChannelID: "chan-1", Hours: 24, CreateThread: true})

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	require.Len(t, del.targets, 1)
	assert.Equal(t, "chan-1", del.targets[0].ChannelID)
	assert.Empty(t, del.targets[0].ThreadID)
}
