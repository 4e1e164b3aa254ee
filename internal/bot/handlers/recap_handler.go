package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chatrecap/chatrecap/internal/summarize"
)

const defaultRecapHours = 24

// NewRecapHandler returns a handler for the /recap command, which produces
// an on-demand summary of the chat's recent history.
func NewRecapHandler(deps HandlerDeps) bot.HandlerFunc {
	return recapHandler{deps}.Handle
}

type recapHandler struct {
	deps HandlerDeps
}

func (h recapHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "recap")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Recap handler received update with nil message or sender", "update_id", update.ID)
		return
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	recordCommand(ctx, h.deps, update.Message, "recap")

	hours, ok := parseHoursArg(update.Message.Text)
	if !ok {
		reply(ctx, b, h.deps, chatID, fmt.Sprintf(h.deps.Config.Messages.InvalidHours, h.deps.Config.Summary.MaxHours))
		return
	}

	log.InfoContext(ctx, "Handling /recap command", "chat_id", chatID, "user_id", userID, "hours", hours)
	reply(ctx, b, h.deps, chatID, fmt.Sprintf(h.deps.Config.Messages.SummaryWorking, hours))

	outcome := h.deps.Orchestrator.Run(ctx, summarize.Request{
		ChannelID:   ChatRef(chatID),
		ChannelName: chatName(&update.Message.Chat),
		RequestedBy: strconv.FormatInt(userID, 10),
		Hours:       hours,
	})

	// Successful runs deliver the summary chunks directly; everything else
	// gets the outcome's user-facing explanation.
	if outcome.Kind != summarize.OutcomeSuccess && outcome.UserMessage != "" {
		reply(ctx, b, h.deps, chatID, outcome.UserMessage)
	}
}

// parseHoursArg extracts the optional hours argument from "/recap [hours]".
// A missing argument means the default window; a malformed one is rejected.
func parseHoursArg(text string) (int, bool) {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return defaultRecapHours, true
	}

	hours, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return hours, true
}
