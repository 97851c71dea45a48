package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
	"github.com/avoronin/sprintbot/internal/links"
)

var emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// handleEmailStep verifies the email against the enrollment list and moves
// the participant to the channel step.
func handleEmailStep(ctx context.Context, deps HandlerDeps, msg *models.Message) {
	log := deps.Logger.With("handler", "registration")
	from := msg.From
	email := strings.ToLower(strings.TrimSpace(msg.Text))

	if !emailRe.MatchString(email) {
		sendText(ctx, deps, from.ID, msgBadEmail)
		return
	}

	allowed, err := deps.Store.EmailAllowed(ctx, email)
	if err != nil {
		log.ErrorContext(ctx, "Failed to check enrollment email", "user_id", from.ID, "error", err)
		return
	}
	if !allowed {
		sendText(ctx, deps, from.ID, msgEmailNotFound)
		return
	}

	owner, err := deps.Store.GetParticipantByEmail(ctx, email)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up email owner", "user_id", from.ID, "error", err)
		return
	}
	if owner != nil && owner.TelegramID != from.ID {
		sendText(ctx, deps, from.ID, msgEmailTaken)
		return
	}

	if err := deps.Store.ClaimEmail(ctx, from.ID, email, from.FirstName, from.Username); err != nil {
		log.ErrorContext(ctx, "Failed to claim email", "user_id", from.ID, "error", err)
		return
	}

	log.InfoContext(ctx, "Email verified", "user_id", from.ID)
	sendText(ctx, deps, from.ID, msgAskChannel)
}

// handleChannelStep links the participant's public channel, completes the
// registration, and reconciles them against the running course.
func handleChannelStep(ctx context.Context, deps HandlerDeps, msg *models.Message) {
	log := deps.Logger.With("handler", "registration")
	from := msg.From

	username := links.ChannelUsername(msg.Text)
	if username == "" {
		sendText(ctx, deps, from.ID, msgBadChannel)
		return
	}

	info, err := deps.Transport.GetChatInfo(ctx, username)
	if err != nil {
		log.DebugContext(ctx, "Channel probe failed", "channel", username, "error", err)
		sendText(ctx, deps, from.ID, msgChannelPriv)
		return
	}
	if info.Type != models.ChatTypeChannel {
		sendText(ctx, deps, from.ID, msgNotAChannel)
		return
	}

	if err := deps.Store.LinkChannel(ctx, from.ID, "https://t.me/"+username); err != nil {
		log.ErrorContext(ctx, "Failed to link channel", "user_id", from.ID, "error", err)
		return
	}

	deps.Monitor.CountRegistration()
	log.InfoContext(ctx, "Registration complete", "user_id", from.ID, "channel", username)
	sendText(ctx, deps, from.ID, msgRegistered)

	admission, err := deps.Course.AdmitLateJoiner(ctx, from.ID)
	if err != nil {
		log.ErrorContext(ctx, "Late joiner admission failed", "user_id", from.ID, "error", err)
		return
	}
	switch admission {
	case course.AdmissionWaiting, course.AdmissionEnrolled:
		sendText(ctx, deps, from.ID, msgRegWaiting)
	case course.AdmissionDayOne, course.AdmissionLimited:
		// The admission already delivered the task content.
	}
}

// statusReply tells a registered participant where they stand.
func statusReply(ctx context.Context, deps HandlerDeps, p *database.Participant) {
	switch p.CourseStage {
	case database.StageCompleted:
		sendText(ctx, deps, p.TelegramID, msgStatusCompleted)
	case database.StageExcluded:
		sendText(ctx, deps, p.TelegramID, msgStatusExcluded)
	case database.StageWaitingTask:
		sendText(ctx, deps, p.TelegramID, msgStatusSubmitted)
	case database.StageInProgress, database.StageLimited:
		clock, err := deps.Store.GetCourseClock(ctx)
		if err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to load course clock for status", "error", err)
			return
		}
		if clock != nil && clock.IsActive && p.CurrentTask == clock.CurrentDay && p.CurrentTask >= 1 {
			sendText(ctx, deps, p.TelegramID, msgStatusTaskDue)
		} else {
			sendText(ctx, deps, p.TelegramID, msgStatusSubmitted)
		}
	default:
		sendText(ctx, deps, p.TelegramID, msgStatusNotStarted)
	}
}

func sendText(ctx context.Context, deps HandlerDeps, chatID int64, text string) {
	if err := deps.Transport.SendMessage(ctx, chatID, text, course.SendOptions{}); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send reply", "chat_id", chatID, "error", err)
	}
}
