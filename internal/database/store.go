package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chatrecap/chatrecap/internal/compress"
)

// windowForwardBuffer extends every window query slightly past the
// reference time so the triggering message itself is not missed when its
// stored timestamp lands just after the command was issued.
const windowForwardBuffer = time.Minute

// Store defines the data access operations for messages and channel
// summaries. Write paths report success explicitly; read paths never
// surface internal errors — a storage hiccup degrades to an empty result,
// logged internally.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// StoreMessage inserts one message. A duplicate ID is not an error: it
	// reports (false, nil), distinct from a genuine failure (false, err).
	StoreMessage(ctx context.Context, message *Message) (bool, error)

	// StoreMessagesBatch inserts messages atomically in one transaction.
	// Duplicate-ID rows inside the batch are skipped silently; the return
	// value is the number of rows newly stored.
	StoreMessagesBatch(ctx context.Context, messages []*Message) (int, error)

	// UpdateScrapedData attaches scraped link content to a stored message.
	// A missing row reports (false, nil): the message may already have been
	// pruned by retention.
	UpdateScrapedData(ctx context.Context, messageID, url, summary string, keyPoints []string) (bool, error)

	// GetMessagesForWindow returns the channel's messages with created_at in
	// [reference-hours, reference+1m], ascending, fully decompressed.
	GetMessagesForWindow(ctx context.Context, channelID string, reference time.Time, hours int) []*Message

	// GetActiveChannels returns distinct channels with at least one message
	// in the trailing window, ordered by message count descending.
	GetActiveChannels(ctx context.Context, hours int) []ChannelActivity

	// DeleteOlderThan removes messages with created_at before cutoff and
	// returns the number deleted.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// StoreChannelSummary inserts one summary row. Summaries are append-only
	// history, never upserts.
	StoreChannelSummary(ctx context.Context, summary *ChannelSummary) error

	// RunSQLMaintenance performs database maintenance (VACUUM).
	RunSQLMaintenance(ctx context.Context) error
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by the given sqlx connection.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{db: db, logger: logger.With("component", "store")}
}

func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const insertMessageQuery = `
	INSERT INTO messages (
		id, author_id, author_name, channel_id, channel_name,
		guild_id, guild_name, content, created_at,
		is_bot, is_command, command_type,
		scraped_url, scraped_content_summary, scraped_content_key_points
	) VALUES (
		:id, :author_id, :author_name, :channel_id, :channel_name,
		:guild_id, :guild_name, :content, :created_at,
		:is_bot, :is_command, :command_type,
		:scraped_url, :scraped_content_summary, :scraped_content_key_points
	)
	ON CONFLICT (id) DO NOTHING;
`

func (s *sqlxStore) StoreMessage(ctx context.Context, message *Message) (bool, error) {
	if message == nil {
		return false, fmt.Errorf("cannot store nil message")
	}
	if message.ID == "" {
		return false, fmt.Errorf("message must have a non-empty id")
	}
	if message.CreatedAt.IsZero() {
		return false, fmt.Errorf("message must have a non-zero created_at")
	}

	result, err := s.db.NamedExecContext(ctx, insertMessageQuery, message.toRow())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error storing message", "message_id", message.ID, "channel_id", message.ChannelID, "error", err)
		return false, fmt.Errorf("failed to store message %s: %w", message.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not read affected rows after storing message", "message_id", message.ID, "error", err)
		return true, nil
	}
	if affected == 0 {
		// Expected on restart when the transport replays history.
		s.logger.DebugContext(ctx, "Message already stored, skipping", "message_id", message.ID)
		return false, nil
	}

	s.logger.DebugContext(ctx, "Message stored", "message_id", message.ID, "channel_id", message.ChannelID)
	return true, nil
}

func (s *sqlxStore) StoreMessagesBatch(ctx context.Context, messages []*Message) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for message batch", "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
				s.logger.WarnContext(ctx, "Error rolling back batch transaction", "error", rollbackErr)
			}
		}
	}()

	stored := 0
	for _, message := range messages {
		if message == nil || message.ID == "" || message.CreatedAt.IsZero() {
			s.logger.WarnContext(ctx, "Skipping invalid message in batch")
			continue
		}
		result, err := tx.NamedExecContext(ctx, insertMessageQuery, message.toRow())
		if err != nil {
			s.logger.ErrorContext(ctx, "Error storing message in batch", "message_id", message.ID, "error", err)
			return 0, fmt.Errorf("failed to store message %s in batch: %w", message.ID, err)
		}
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit message batch", "error", err)
		return 0, fmt.Errorf("failed to commit message batch: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Message batch stored", "batch_size", len(messages), "newly_stored", stored)
	return stored, nil
}

func (s *sqlxStore) UpdateScrapedData(ctx context.Context, messageID, url, summary string, keyPoints []string) (bool, error) {
	if messageID == "" {
		return false, fmt.Errorf("message_id cannot be empty")
	}

	encodedPoints := sql.NullString{}
	if len(keyPoints) > 0 {
		encoded, err := compress.CompressJSON(keyPoints)
		if err != nil {
			return false, fmt.Errorf("failed to encode key points for message %s: %w", messageID, err)
		}
		encodedPoints = sql.NullString{String: encoded, Valid: true}
	}

	query := `
		UPDATE messages SET
			scraped_url = ?,
			scraped_content_summary = ?,
			scraped_content_key_points = ?
		WHERE id = ?;
	`
	result, err := s.db.ExecContext(ctx, query, nullable(url), nullable(compress.Compress(summary)), encodedPoints, messageID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error updating scraped data", "message_id", messageID, "error", err)
		return false, fmt.Errorf("failed to update scraped data for message %s: %w", messageID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not read affected rows after scraped update", "message_id", messageID, "error", err)
		return true, nil
	}
	if affected == 0 {
		// The message may have been pruned before enrichment finished.
		s.logger.DebugContext(ctx, "No message row for scraped update", "message_id", messageID)
		return false, nil
	}
	return true, nil
}

func (s *sqlxStore) GetMessagesForWindow(ctx context.Context, channelID string, reference time.Time, hours int) []*Message {
	if channelID == "" || hours <= 0 {
		s.logger.WarnContext(ctx, "Invalid window query parameters", "channel_id", channelID, "hours", hours)
		return nil
	}

	start := FormatTime(reference.Add(-time.Duration(hours) * time.Hour))
	end := FormatTime(reference.Add(windowForwardBuffer))

	query := `
		SELECT id, author_id, author_name, channel_id, channel_name,
		       guild_id, guild_name, content, created_at,
		       is_bot, is_command, command_type,
		       scraped_url, scraped_content_summary, scraped_content_key_points
		FROM messages
		WHERE channel_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC;
	`

	var rows []messageRow
	if err := s.db.SelectContext(ctx, &rows, query, channelID, start, end); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching message window, returning empty",
			"channel_id", channelID, "start", start, "end", end, "error", err)
		return nil
	}

	messages := make([]*Message, 0, len(rows))
	for i := range rows {
		m, err := rows[i].toMessage()
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping message with unparseable timestamp", "message_id", rows[i].ID, "error", err)
			continue
		}
		messages = append(messages, m)
	}

	s.logger.DebugContext(ctx, "Fetched message window", "channel_id", channelID, "hours", hours, "count", len(messages))
	return messages
}

func (s *sqlxStore) GetActiveChannels(ctx context.Context, hours int) []ChannelActivity {
	if hours <= 0 {
		s.logger.WarnContext(ctx, "Invalid active channel window", "hours", hours)
		return nil
	}

	cutoff := FormatTime(time.Now().Add(-time.Duration(hours) * time.Hour))
	query := `
		SELECT channel_id, channel_name,
		       COALESCE(MAX(guild_id), '') AS guild_id,
		       COALESCE(MAX(guild_name), '') AS guild_name,
		       COUNT(*) AS message_count
		FROM messages
		WHERE created_at >= ?
		GROUP BY channel_id, channel_name
		ORDER BY message_count DESC;
	`

	var channels []ChannelActivity
	if err := s.db.SelectContext(ctx, &channels, query, cutoff); err != nil {
		s.logger.ErrorContext(ctx, "Error fetching active channels, returning empty", "hours", hours, "error", err)
		return nil
	}
	return channels
}

func (s *sqlxStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?;`, FormatTime(cutoff))
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting old messages", "cutoff", FormatTime(cutoff), "error", err)
		return 0, fmt.Errorf("failed to delete messages older than %s: %w", FormatTime(cutoff), err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not read affected rows after retention sweep", "error", err)
		return 0, nil
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "Retention sweep removed messages", "count", deleted, "cutoff", FormatTime(cutoff))
	}
	return deleted, nil
}

func (s *sqlxStore) StoreChannelSummary(ctx context.Context, summary *ChannelSummary) error {
	if summary == nil {
		return fmt.Errorf("cannot store nil channel summary")
	}
	if summary.ChannelID == "" {
		return fmt.Errorf("channel summary must have a channel_id")
	}

	activeUsers, err := compress.CompressJSON(summary.ActiveUsers)
	if err != nil {
		return fmt.Errorf("failed to encode active users: %w", err)
	}
	metadata, err := compress.CompressJSON(summary.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode summary metadata: %w", err)
	}

	createdAt := summary.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := &summaryRow{
		ChannelID:    summary.ChannelID,
		ChannelName:  summary.ChannelName,
		GuildID:      nullable(summary.GuildID),
		GuildName:    nullable(summary.GuildName),
		Date:         summary.Date,
		SummaryText:  compress.Compress(summary.SummaryText),
		MessageCount: summary.MessageCount,
		ActiveUsers:  activeUsers,
		CreatedAt:    FormatTime(createdAt),
		Metadata:     metadata,
	}

	query := `
		INSERT INTO channel_summaries (
			channel_id, channel_name, guild_id, guild_name, date,
			summary_text, message_count, active_users, created_at, metadata
		) VALUES (
			:channel_id, :channel_name, :guild_id, :guild_name, :date,
			:summary_text, :message_count, :active_users, :created_at, :metadata
		);
	`
	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error storing channel summary", "channel_id", summary.ChannelID, "date", summary.Date, "error", err)
		return fmt.Errorf("failed to store summary for channel %s: %w", summary.ChannelID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		summary.ID = id
	}

	s.logger.InfoContext(ctx, "Channel summary stored",
		"channel_id", summary.ChannelID, "date", summary.Date, "message_count", summary.MessageCount)
	return nil
}

func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)")
	if _, err := s.db.ExecContext(ctx, "VACUUM;"); err != nil {
		s.logger.ErrorContext(ctx, "Database maintenance failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}
	s.logger.InfoContext(ctx, "Database maintenance completed")
	return nil
}
