package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
)

// NewCourseStartHandler returns the /course_start handler. It activates the
// course clock; the first task goes out with the next scheduled broadcast.
func NewCourseStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID

		result, err := deps.Course.Start(ctx)
		switch {
		case errors.Is(err, course.ErrCourseActive):
			adminReply(ctx, deps, chatID, fmt.Sprintf("Refused: %v.", err))
			return
		case err != nil:
			deps.Logger.ErrorContext(ctx, "Course start failed", "error", err)
			adminReply(ctx, deps, chatID, "Course start failed: "+err.Error())
			return
		}

		adminReply(ctx, deps, chatID,
			fmt.Sprintf("Course started. %d participants enrolled, first broadcast at the next scheduled slot.", result.Enrolled))
	}
}

// NewCourseStopHandler returns the /course_stop handler. Stopping wipes all
// participant progress, so it requires a literal CONFIRM argument.
func NewCourseStopHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID
		args := commandArgs(update.Message.Text)

		confirmed := len(args) == 1 && args[0] == "CONFIRM"
		count, err := deps.Course.Stop(ctx, confirmed)
		switch {
		case errors.Is(err, course.ErrNotConfirmed):
			adminReply(ctx, deps, chatID,
				"This resets every participant's progress. Run /course_stop CONFIRM to proceed.")
			return
		case errors.Is(err, course.ErrCourseInactive):
			adminReply(ctx, deps, chatID, "No active course to stop.")
			return
		case err != nil:
			deps.Logger.ErrorContext(ctx, "Course stop failed", "error", err)
			adminReply(ctx, deps, chatID, "Course stop failed: "+err.Error())
			return
		}

		adminReply(ctx, deps, chatID, fmt.Sprintf("Course stopped, %d participants reset.", count))
	}
}

// NewSendDigestHandler returns the /send_digest handler: "all" re-runs the
// daily broadcast, a Telegram ID delivers today's task to that participant.
func NewSendDigestHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID
		args := commandArgs(update.Message.Text)

		if len(args) != 1 {
			adminReply(ctx, deps, chatID, "Usage: /send_digest all | /send_digest <telegram_id>")
			return
		}

		if args[0] == "all" {
			if err := deps.Course.BroadcastTask(ctx); err != nil {
				deps.Logger.ErrorContext(ctx, "Manual broadcast failed", "error", err)
				adminReply(ctx, deps, chatID, "Broadcast failed: "+err.Error())
				return
			}
			adminReply(ctx, deps, chatID, "Broadcast done.")
			return
		}

		telegramID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			adminReply(ctx, deps, chatID, "Usage: /send_digest all | /send_digest <telegram_id>")
			return
		}

		day, err := deps.Course.BroadcastTaskToOne(ctx, telegramID)
		switch {
		case errors.Is(err, course.ErrCourseInactive):
			adminReply(ctx, deps, chatID, "No active course day to send.")
			return
		case err != nil:
			deps.Logger.ErrorContext(ctx, "Manual task delivery failed", "telegram_id", telegramID, "error", err)
			adminReply(ctx, deps, chatID, "Delivery failed: "+err.Error())
			return
		}

		adminReply(ctx, deps, chatID, fmt.Sprintf("Day %d task sent to %d.", day, telegramID))
	}
}

// NewForceReminderHandler returns the /force_reminder handler: it fires one
// reminder wave (1..3) outside the schedule.
func NewForceReminderHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID
		args := commandArgs(update.Message.Text)

		number := 0
		if len(args) == 1 {
			number, _ = strconv.Atoi(args[0])
		}
		if number < 1 || number > 3 {
			adminReply(ctx, deps, chatID, "Usage: /force_reminder <1|2|3>")
			return
		}

		if err := deps.Course.SendReminder(ctx, number); err != nil {
			deps.Logger.ErrorContext(ctx, "Manual reminder failed", "number", number, "error", err)
			adminReply(ctx, deps, chatID, "Reminder failed: "+err.Error())
			return
		}
		adminReply(ctx, deps, chatID, fmt.Sprintf("Reminder %d sent.", number))
	}
}

// NewForceCheckHandler returns the /force_check handler: it runs the
// completion check and then advances the course day, same as the nightly
// schedule does.
func NewForceCheckHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID

		if err := deps.Course.CheckCompletion(ctx); err != nil {
			deps.Logger.ErrorContext(ctx, "Manual completion check failed", "error", err)
			adminReply(ctx, deps, chatID, "Completion check failed: "+err.Error())
			return
		}
		if err := deps.Course.AdvanceDay(ctx); err != nil {
			deps.Logger.ErrorContext(ctx, "Manual day advance failed", "error", err)
			adminReply(ctx, deps, chatID, "Completion check done, day advance failed: "+err.Error())
			return
		}
		adminReply(ctx, deps, chatID, "Completion check done, day advanced.")
	}
}

// NewNotifyGroupHandler returns the /notify_group handler: it sends an ad-hoc
// message to every member of a named cohort.
func NewNotifyGroupHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID
		args := commandArgs(update.Message.Text)

		if len(args) < 2 {
			adminReply(ctx, deps, chatID, "Usage: /notify_group <cohort> <text>")
			return
		}
		cohort := args[0]
		text := strings.Join(args[1:], " ")

		ids, err := deps.Store.ListCohort(ctx, cohort)
		if err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to load cohort", "cohort", cohort, "error", err)
			adminReply(ctx, deps, chatID, "Failed to load cohort: "+err.Error())
			return
		}
		if len(ids) == 0 {
			adminReply(ctx, deps, chatID, fmt.Sprintf("Cohort %q is empty.", cohort))
			return
		}

		sent, failed := 0, 0
		for _, id := range ids {
			if err := deps.Transport.SendMessage(ctx, id, text, course.SendOptions{}); err != nil {
				deps.Logger.WarnContext(ctx, "Cohort notification failed", "telegram_id", id, "error", err)
				failed++
				continue
			}
			sent++
			time.Sleep(deps.Config.Telegram.SendPause)
		}

		adminReply(ctx, deps, chatID,
			fmt.Sprintf("Cohort %q notified: %d sent, %d failed.", cohort, sent, failed))
	}
}

// NewRepairHandler returns the /repair handler: it normalizes one
// participant's row back to a consistent state after manual intervention.
func NewRepairHandler(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		chatID := update.Message.Chat.ID
		args := commandArgs(update.Message.Text)

		if len(args) != 1 {
			adminReply(ctx, deps, chatID, "Usage: /repair <telegram_id>")
			return
		}
		telegramID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			adminReply(ctx, deps, chatID, "Usage: /repair <telegram_id>")
			return
		}

		p, err := deps.Store.GetParticipant(ctx, telegramID)
		if err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to load participant for repair", "telegram_id", telegramID, "error", err)
			adminReply(ctx, deps, chatID, "Lookup failed: "+err.Error())
			return
		}
		if p == nil {
			adminReply(ctx, deps, chatID, fmt.Sprintf("No participant with ID %d.", telegramID))
			return
		}

		fixes := repairParticipant(p, deps.Config.Course.Days)
		if len(fixes) == 0 {
			adminReply(ctx, deps, chatID, fmt.Sprintf("Participant %d looks consistent, nothing to repair.", telegramID))
			return
		}

		if err := deps.Store.SaveParticipant(ctx, p); err != nil {
			deps.Logger.ErrorContext(ctx, "Failed to save repaired participant", "telegram_id", telegramID, "error", err)
			adminReply(ctx, deps, chatID, "Save failed: "+err.Error())
			return
		}

		deps.Logger.InfoContext(ctx, "Participant repaired", "telegram_id", telegramID, "fixes", len(fixes))
		adminReply(ctx, deps, chatID,
			fmt.Sprintf("Participant %d repaired:\n- %s", telegramID, strings.Join(fixes, "\n- ")))
	}
}

// repairParticipant normalizes impossible field combinations in place and
// returns a description of each applied fix.
func repairParticipant(p *database.Participant, courseDays int) []string {
	var fixes []string

	if p.CourseStage != database.StageNotStarted && p.RegistrationState != database.RegistrationDone {
		p.RegistrationState = database.RegistrationDone
		fixes = append(fixes, "registration state set to registered (course stage implies it)")
	}

	if p.CourseStage == database.StageNotStarted && p.CurrentTask != 0 {
		p.CurrentTask = 0
		fixes = append(fixes, "current task cleared (course not started)")
	}

	if p.CurrentTask < 0 {
		p.CurrentTask = 0
		fixes = append(fixes, "negative current task cleared")
	}
	if p.CurrentTask > courseDays+1 {
		p.CurrentTask = courseDays + 1
		fixes = append(fixes, fmt.Sprintf("current task capped at %d", courseDays+1))
	}

	if p.Penalties < 0 {
		p.Penalties = 0
		fixes = append(fixes, "negative penalty count cleared")
	}

	switch p.CourseStage {
	case database.StageWaitingTask:
		if p.CourseStageDay < 1 || p.CourseStageDay > courseDays {
			p.CourseStageDay = max(p.CurrentTask-1, 1)
			fixes = append(fixes, fmt.Sprintf("waiting-task day set to %d", p.CourseStageDay))
		}
	case database.StageLimited:
		if p.CourseStageDay < 1 || p.CourseStageDay > courseDays {
			p.CourseStageDay = max(p.CurrentTask, 1)
			fixes = append(fixes, fmt.Sprintf("limited-admission day set to %d", p.CourseStageDay))
		}
	default:
		if p.CourseStageDay != 0 {
			p.CourseStageDay = 0
			fixes = append(fixes, "stage day cleared (stage carries no day)")
		}
	}

	return fixes
}

func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

func adminReply(ctx context.Context, deps HandlerDeps, chatID int64, text string) {
	if err := deps.Transport.SendMessage(ctx, chatID, text, course.SendOptions{}); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send admin reply", "chat_id", chatID, "error", err)
	}
}
