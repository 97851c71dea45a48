package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
)

// NewStartHandler returns a handler for the /start command.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

// startHandler begins or resumes the registration funnel.
type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	if update.Message.Chat.Type != models.ChatTypePrivate {
		return
	}

	from := update.Message.From
	log.InfoContext(ctx, "Handling /start command", "user_id", from.ID)

	p, err := h.deps.Store.GetParticipant(ctx, from.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load participant", "user_id", from.ID, "error", err)
		return
	}

	if p == nil {
		p = &database.Participant{
			TelegramID:        from.ID,
			FirstName:         from.FirstName,
			RegistrationState: database.RegistrationWaitingEmail,
		}
		if from.Username != "" {
			p.Username.String = from.Username
			p.Username.Valid = true
		}
		if err := h.deps.Store.CreateParticipant(ctx, p); err != nil {
			log.ErrorContext(ctx, "Failed to create participant", "user_id", from.ID, "error", err)
			return
		}
		h.reply(ctx, from.ID, msgAskEmail)
		return
	}

	switch p.RegistrationState {
	case database.RegistrationDone:
		statusReply(ctx, h.deps, p)
	case database.RegistrationWaitingChannel:
		h.reply(ctx, from.ID, msgAskChannel)
	default:
		if err := h.deps.Store.UpdateRegistrationState(ctx, from.ID, database.RegistrationWaitingEmail); err != nil {
			log.ErrorContext(ctx, "Failed to reset registration state", "user_id", from.ID, "error", err)
		}
		h.reply(ctx, from.ID, msgAskEmail)
	}
}

func (h startHandler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.deps.Transport.SendMessage(ctx, chatID, text, course.SendOptions{}); err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send start reply", "chat_id", chatID, "error", err)
	}
}
