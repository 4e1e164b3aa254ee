package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const channelsActivityHours = 24

// NewChannelsHandler returns a handler for the /channels command, which
// lists the channels with recent activity. Requires admin privileges
// (enforced by middleware).
func NewChannelsHandler(deps HandlerDeps) bot.HandlerFunc {
	return channelsHandler{deps}.Handle
}

type channelsHandler struct {
	deps HandlerDeps
}

func (h channelsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "channels")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Channels handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	recordCommand(ctx, h.deps, update.Message, "channels")
	log.InfoContext(ctx, "Admin requested active channel list", "chat_id", chatID, "user_id", update.Message.From.ID)

	queryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	channels := h.deps.Store.GetActiveChannels(queryCtx, channelsActivityHours)
	if len(channels) == 0 {
		reply(ctx, b, h.deps, chatID, fmt.Sprintf("No channels with activity in the last %d hours.", channelsActivityHours))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Active channels (last %d hours):\n", channelsActivityHours)
	for _, ch := range channels {
		name := ch.ChannelName
		if name == "" {
			name = ch.ChannelID
		}
		fmt.Fprintf(&sb, "- %s: %d messages\n", name, ch.MessageCount)
	}

	reply(ctx, b, h.deps, chatID, sb.String())
}
