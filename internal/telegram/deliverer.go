package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-telegram/bot"

	"github.com/chatrecap/chatrecap/internal/bot/handlers"
	"github.com/chatrecap/chatrecap/internal/config"
	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/summarize"
)

func parseChatRef(ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat reference %q: %w", ref, err)
	}
	return id, nil
}

// Deliverer sends summary chunks through the Telegram API and records each
// sent chunk in the message store as a bot-authored message, so delivered
// summaries are part of the channel history like any other message.
type Deliverer struct {
	b       *bot.Bot
	store   database.Store
	botInfo config.BotInfo
	logger  *slog.Logger
}

// NewDeliverer creates a Deliverer backed by the given bot instance.
func NewDeliverer(b *bot.Bot, store database.Store, botInfo config.BotInfo, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		b:       b,
		store:   store,
		botInfo: botInfo,
		logger:  logger.With("component", "deliverer"),
	}
}

// Deliver sends one chunk into the referenced chat, or into a forum topic
// when the reference carries a thread ID.
func (d *Deliverer) Deliver(ctx context.Context, ref summarize.ChannelRef, text string) error {
	chatID, err := parseChatRef(ref.ChannelID)
	if err != nil {
		return err
	}

	params := &bot.SendMessageParams{ChatID: chatID, Text: text}
	if ref.ThreadID != "" {
		threadID, err := strconv.Atoi(ref.ThreadID)
		if err != nil {
			return fmt.Errorf("invalid thread reference %q: %w", ref.ThreadID, err)
		}
		params.MessageThreadID = threadID
	}

	sent, err := d.b.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to send summary chunk: %w", err)
	}

	d.record(ctx, chatID, sent.ID, text)
	return nil
}

// CreateThread opens a forum topic in the referenced chat. Chats without
// forum topics enabled make this fail; callers fall back to the channel.
func (d *Deliverer) CreateThread(ctx context.Context, ref summarize.ChannelRef, name string) (summarize.ChannelRef, error) {
	chatID, err := parseChatRef(ref.ChannelID)
	if err != nil {
		return summarize.ChannelRef{}, err
	}

	topic, err := d.b.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: chatID,
		Name:   name,
	})
	if err != nil {
		return summarize.ChannelRef{}, fmt.Errorf("failed to create forum topic: %w", err)
	}

	return summarize.ChannelRef{
		ChannelID: ref.ChannelID,
		ThreadID:  strconv.Itoa(topic.MessageThreadID),
	}, nil
}

// record stores the delivered chunk as a bot message. A storage failure is
// logged only; the chunk already reached the chat.
func (d *Deliverer) record(ctx context.Context, chatID int64, messageID int, text string) {
	msg := &database.Message{
		ID:         handlers.MessageRef(chatID, messageID),
		AuthorID:   strconv.FormatInt(d.botInfo.ID, 10),
		AuthorName: d.botInfo.Username,
		ChannelID:  handlers.ChatRef(chatID),
		Content:    text,
		CreatedAt:  time.Now().UTC(),
		IsBot:      true,
	}
	if _, err := d.store.StoreMessage(ctx, msg); err != nil {
		d.logger.WarnContext(ctx, "Failed to record delivered summary chunk", "error", err, "message_id", msg.ID)
	}
}
