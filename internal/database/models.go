package database

import (
	"database/sql"
	"time"

	"github.com/chatrecap/chatrecap/internal/compress"
)

// Message represents one inbound or outbound chat event. The bot's own
// replies are stored too, flagged with IsBot. Scraped fields are filled in
// later by the link enrichment worker, not at insert time.
type Message struct {
	ID string // externally assigned, unique per transport

	AuthorID   string
	AuthorName string

	ChannelID   string
	ChannelName string
	GuildID     string // empty for direct messages
	GuildName   string

	Content   string
	CreatedAt time.Time

	IsBot       bool
	IsCommand   bool
	CommandType string

	ScrapedURL       string
	ScrapedSummary   string
	ScrapedKeyPoints []string
}

// ChannelSummary is one generated digest of a channel's activity for a time
// span. Rows are append-only: re-running a window produces a new row.
type ChannelSummary struct {
	ID int64

	ChannelID   string
	ChannelName string
	GuildID     string
	GuildName   string

	Date         string // YYYY-MM-DD reference date of the window
	SummaryText  string
	MessageCount int
	ActiveUsers  []string
	CreatedAt    time.Time
	Metadata     map[string]any
}

// ChannelActivity annotates a channel with its message count inside a
// trailing window.
type ChannelActivity struct {
	ChannelID    string `db:"channel_id"`
	ChannelName  string `db:"channel_name"`
	GuildID      string `db:"guild_id"`
	GuildName    string `db:"guild_name"`
	MessageCount int    `db:"message_count"`
}

// messageRow is the storage shape of Message: canonical text timestamps,
// NULLable columns as sql.NullString, content passed through the codec.
type messageRow struct {
	ID          string         `db:"id"`
	AuthorID    string         `db:"author_id"`
	AuthorName  string         `db:"author_name"`
	ChannelID   string         `db:"channel_id"`
	ChannelName string         `db:"channel_name"`
	GuildID     sql.NullString `db:"guild_id"`
	GuildName   sql.NullString `db:"guild_name"`
	Content     string         `db:"content"`
	CreatedAt   string         `db:"created_at"`
	IsBot       bool           `db:"is_bot"`
	IsCommand   bool           `db:"is_command"`
	CommandType sql.NullString `db:"command_type"`

	ScrapedURL       sql.NullString `db:"scraped_url"`
	ScrapedSummary   sql.NullString `db:"scraped_content_summary"`
	ScrapedKeyPoints sql.NullString `db:"scraped_content_key_points"`
}

// summaryRow is the storage shape of ChannelSummary.
type summaryRow struct {
	ID           int64          `db:"id"`
	ChannelID    string         `db:"channel_id"`
	ChannelName  string         `db:"channel_name"`
	GuildID      sql.NullString `db:"guild_id"`
	GuildName    sql.NullString `db:"guild_name"`
	Date         string         `db:"date"`
	SummaryText  string         `db:"summary_text"`
	MessageCount int            `db:"message_count"`
	ActiveUsers  string         `db:"active_users"`
	CreatedAt    string         `db:"created_at"`
	Metadata     string         `db:"metadata"`
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (m *Message) toRow() *messageRow {
	row := &messageRow{
		ID:          m.ID,
		AuthorID:    m.AuthorID,
		AuthorName:  m.AuthorName,
		ChannelID:   m.ChannelID,
		ChannelName: m.ChannelName,
		GuildID:     nullable(m.GuildID),
		GuildName:   nullable(m.GuildName),
		Content:     compress.Compress(m.Content),
		CreatedAt:   FormatTime(m.CreatedAt),
		IsBot:       m.IsBot,
		IsCommand:   m.IsCommand,
		CommandType: nullable(m.CommandType),
		ScrapedURL:  nullable(m.ScrapedURL),
	}
	if m.ScrapedSummary != "" {
		row.ScrapedSummary = nullable(compress.Compress(m.ScrapedSummary))
	}
	if len(m.ScrapedKeyPoints) > 0 {
		if encoded, err := compress.CompressJSON(m.ScrapedKeyPoints); err == nil {
			row.ScrapedKeyPoints = nullable(encoded)
		}
	}
	return row
}

func (r *messageRow) toMessage() (*Message, error) {
	createdAt, err := ParseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:          r.ID,
		AuthorID:    r.AuthorID,
		AuthorName:  r.AuthorName,
		ChannelID:   r.ChannelID,
		ChannelName: r.ChannelName,
		GuildID:     r.GuildID.String,
		GuildName:   r.GuildName.String,
		Content:     compress.Decompress(r.Content),
		CreatedAt:   createdAt,
		IsBot:       r.IsBot,
		IsCommand:   r.IsCommand,
		CommandType: r.CommandType.String,
		ScrapedURL:  r.ScrapedURL.String,
	}
	if r.ScrapedSummary.Valid {
		m.ScrapedSummary = compress.Decompress(r.ScrapedSummary.String)
	}
	if r.ScrapedKeyPoints.Valid {
		// Corrupt key point lists are dropped rather than failing the read.
		_ = compress.DecompressJSON(r.ScrapedKeyPoints.String, &m.ScrapedKeyPoints)
	}
	return m, nil
}
