// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chatrecap/chatrecap/internal/database"
	"github.com/chatrecap/chatrecap/internal/scrape"
)

const storeTimeout = 5 * time.Second

// MessageRef builds the storage identifier for a Telegram message. Telegram
// message IDs are only unique per chat, so the chat ID is part of the key.
func MessageRef(chatID int64, messageID int) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// ChatRef renders a chat ID the way it is stored as a channel identifier.
func ChatRef(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// NewIngestHandler returns the default handler that records every incoming
// text message into the store, feeding the summarization history.
func NewIngestHandler(deps HandlerDeps) bot.HandlerFunc {
	return ingestHandler{deps}.Handle
}

type ingestHandler struct {
	deps HandlerDeps
}

func (h ingestHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "ingest")

	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	msg := messageFromUpdate(update.Message)

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	stored, err := h.deps.Store.StoreMessage(storeCtx, msg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to store incoming message", "error", err, "message_id", msg.ID)
		return
	}
	if !stored {
		log.DebugContext(ctx, "Skipping duplicate message", "message_id", msg.ID)
		return
	}

	if h.deps.Enricher != nil {
		if url := scrape.ExtractURL(msg.Content); url != "" {
			h.deps.Enricher.Submit(msg.ID, url)
		}
	}
}

// messageFromUpdate maps a Telegram message into the storage model.
func messageFromUpdate(m *models.Message) *database.Message {
	return &database.Message{
		ID:          MessageRef(m.Chat.ID, m.ID),
		AuthorID:    strconv.FormatInt(m.From.ID, 10),
		AuthorName:  authorName(m.From),
		ChannelID:   ChatRef(m.Chat.ID),
		ChannelName: chatName(&m.Chat),
		Content:     m.Text,
		CreatedAt:   time.Unix(int64(m.Date), 0).UTC(),
		IsBot:       m.From.IsBot,
	}
}

func authorName(u *models.User) string {
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func chatName(c *models.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return c.Username
}

// recordCommand stores the triggering command message itself. Commands are
// kept in history but flagged so transcripts can exclude them.
func recordCommand(ctx context.Context, deps HandlerDeps, m *models.Message, commandType string) {
	msg := messageFromUpdate(m)
	msg.IsCommand = true
	msg.CommandType = commandType

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if _, err := deps.Store.StoreMessage(storeCtx, msg); err != nil {
		deps.Logger.WarnContext(ctx, "Failed to store command message", "error", err, "message_id", msg.ID, "command", commandType)
	}
}

// reply sends a text response and records it as a bot-authored message so
// the bot's own output is part of the channel history.
func reply(ctx context.Context, b *bot.Bot, deps HandlerDeps, chatID int64, text string) {
	sent, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send reply", "error", err, "chat_id", chatID)
		return
	}

	msg := &database.Message{
		ID:         MessageRef(chatID, sent.ID),
		AuthorID:   strconv.FormatInt(deps.Config.Telegram.BotInfo.ID, 10),
		AuthorName: deps.Config.Telegram.BotInfo.Username,
		ChannelID:  ChatRef(chatID),
		Content:    text,
		CreatedAt:  time.Now().UTC(),
		IsBot:      true,
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if _, err := deps.Store.StoreMessage(storeCtx, msg); err != nil {
		deps.Logger.WarnContext(ctx, "Failed to store bot reply", "error", err, "message_id", msg.ID)
	}
}
