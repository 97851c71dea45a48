package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/database"
	"github.com/avoronin/sprintbot/internal/dialog"
	"github.com/avoronin/sprintbot/internal/links"
)

// NewMessageHandler returns the default handler: every non-command private
// message lands here and is dispatched on dialog state first, then on the
// registration funnel.
func NewMessageHandler(deps HandlerDeps) bot.HandlerFunc {
	return messageHandler{deps}.Handle
}

type messageHandler struct {
	deps HandlerDeps
}

func (h messageHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.deps.Monitor.CountUpdate()

	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if msg.Chat.Type != models.ChatTypePrivate {
		return
	}

	log := h.deps.Logger.With("handler", "message", "user_id", msg.From.ID)

	p, err := h.deps.Store.GetParticipant(ctx, msg.From.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load participant", "error", err)
		return
	}
	if p == nil {
		sendText(ctx, h.deps, msg.From.ID, msgUseStart)
		return
	}

	// An active dialog takes precedence over everything else.
	if state := h.deps.Dialogs.Peek(msg.From.ID); state != nil {
		switch {
		case state.Step.QuestionNumber() > 0:
			if msg.Voice != nil {
				handleVoiceAnswer(ctx, h.deps, msg, state)
				return
			}
			if msg.Text != "" {
				handleAnswer(ctx, h.deps, msg.From.ID, msg.Text, state)
				return
			}
			return
		case state.Step == dialog.StepAwaitingURL:
			if msg.Text != "" {
				handlePostLink(ctx, h.deps, p, msg.Text, state)
			}
			return
		case state.Step == dialog.StepGenerating:
			sendText(ctx, h.deps, msg.From.ID, msgStillGenerating)
			return
		}
	}

	if msg.Text == "" {
		return
	}

	switch p.RegistrationState {
	case database.RegistrationWaitingEmail, database.RegistrationNew:
		handleEmailStep(ctx, h.deps, msg)
	case database.RegistrationWaitingChannel:
		handleChannelStep(ctx, h.deps, msg)
	case database.RegistrationDone:
		if links.LooksLikePostLink(msg.Text) && p.Enrolled() {
			sendText(ctx, h.deps, msg.From.ID, msgUsePostButton)
			return
		}
		statusReply(ctx, h.deps, p)
	}
}
