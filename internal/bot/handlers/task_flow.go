package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
	"github.com/avoronin/sprintbot/internal/dialog"
	"github.com/avoronin/sprintbot/internal/generator"
	"github.com/avoronin/sprintbot/internal/links"
)

// NewWritePostCallback returns the handler for the write-post button: it
// opens the three-question dialog for the participant's current task.
func NewWritePostCallback(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		deps.Monitor.CountUpdate()

		cq := update.CallbackQuery
		if cq == nil {
			return
		}
		ackCallback(ctx, deps, b, cq.ID)

		p, day := loadTaskParticipant(ctx, deps, cq.From.ID)
		if p == nil {
			return
		}
		if day == 0 {
			return
		}

		task, err := deps.Store.GetTaskByDay(ctx, day)
		if err != nil || task == nil {
			deps.Logger.ErrorContext(ctx, "Task content unavailable", "day", day, "error", err)
			sendText(ctx, deps, p.TelegramID, msgGenFailed)
			return
		}

		deps.Dialogs.Set(p.TelegramID, &dialog.State{
			Step: dialog.StepQuestion1,
			Day:  day,
			Task: task,
		})

		sendText(ctx, deps, p.TelegramID, msgQuestionsIntro)
		sendText(ctx, deps, p.TelegramID, task.Question(1))
	}
}

// NewSubmitTaskCallback returns the handler for the submit-task button: it
// asks for the published post link.
func NewSubmitTaskCallback(deps HandlerDeps) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		deps.Monitor.CountUpdate()

		cq := update.CallbackQuery
		if cq == nil {
			return
		}
		ackCallback(ctx, deps, b, cq.ID)

		p, day := loadTaskParticipant(ctx, deps, cq.From.ID)
		if p == nil {
			return
		}
		if day == 0 {
			return
		}
		if !p.ChannelLink.Valid || p.ChannelLink.String == "" {
			sendText(ctx, deps, p.TelegramID, msgNeedChannel)
			return
		}

		deps.Dialogs.Set(p.TelegramID, &dialog.State{
			Step: dialog.StepAwaitingURL,
			Day:  day,
		})
		sendText(ctx, deps, p.TelegramID, msgAskLink)
	}
}

// loadTaskParticipant loads the participant and the day of their actionable
// task. A zero day means a reply was already sent and the flow must stop.
func loadTaskParticipant(ctx context.Context, deps HandlerDeps, userID int64) (*database.Participant, int) {
	p, err := deps.Store.GetParticipant(ctx, userID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to load participant", "user_id", userID, "error", err)
		return nil, 0
	}
	if p == nil {
		return nil, 0
	}

	if p.CourseStage == database.StageWaitingTask || p.CourseStage == database.StageCompleted {
		sendText(ctx, deps, userID, msgAlreadyDone)
		return p, 0
	}
	if !p.Enrolled() || p.CurrentTask < 1 || p.CurrentTask > deps.Config.Course.Days {
		sendText(ctx, deps, userID, msgNoTaskYet)
		return p, 0
	}
	return p, p.CurrentTask
}

// handleAnswer records an answer and either asks the next question or runs
// the generation step.
func handleAnswer(ctx context.Context, deps HandlerDeps, userID int64, answer string, state *dialog.State) {
	n := state.Step.QuestionNumber()
	deps.Dialogs.SaveAnswer(userID, n, answer)

	if n < 3 {
		deps.Dialogs.SetStep(userID, dialog.NextQuestion(n))
		sendText(ctx, deps, userID, state.Task.Question(n+1))
		return
	}

	deps.Dialogs.SetStep(userID, dialog.StepGenerating)
	sendText(ctx, deps, userID, msgGenerating)

	prompt := buildPrompt(state)
	text, err := deps.Generator.Generate(ctx, userID, prompt)
	deps.Dialogs.Clear(userID)

	switch {
	case errors.Is(err, generator.ErrTimeout):
		deps.Monitor.GenerationTimeout(ctx, userID)
		sendText(ctx, deps, userID, msgGenTimeout)
		return
	case err != nil:
		deps.Logger.ErrorContext(ctx, "Generation failed", "user_id", userID, "error", err)
		sendText(ctx, deps, userID, msgGenFailed)
		return
	}

	sendText(ctx, deps, userID, text)
	if err := deps.Transport.SendMessage(ctx, userID, msgPublishPrompt,
		course.SendOptions{Keyboard: course.KeyboardSubmit}); err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to send publish prompt", "user_id", userID, "error", err)
	}
}

// handleVoiceAnswer transcribes a voice answer and feeds it into the
// regular answer flow.
func handleVoiceAnswer(ctx context.Context, deps HandlerDeps, msg *models.Message, state *dialog.State) {
	userID := msg.From.ID

	data, err := deps.Transport.DownloadFile(ctx, msg.Voice.FileID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to download voice message", "user_id", userID, "error", err)
		sendText(ctx, deps, userID, msgVoiceFailed)
		return
	}

	mimeType := msg.Voice.MimeType
	if mimeType == "" {
		mimeType = "audio/ogg"
	}

	text, err := deps.Transcriber.Transcribe(ctx, data, mimeType)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Voice transcription failed", "user_id", userID, "error", err)
		sendText(ctx, deps, userID, msgVoiceFailed)
		return
	}

	handleAnswer(ctx, deps, userID, text, state)
}

// handlePostLink validates a submitted post link and records the submission.
// Validation failures keep the dialog open so the user can retry.
func handlePostLink(ctx context.Context, deps HandlerDeps, p *database.Participant, text string, state *dialog.State) {
	userID := p.TelegramID

	var channel string
	if p.ChannelLink.Valid {
		channel = p.ChannelLink.String
	}

	_, err := deps.Links.Validate(ctx, text, channel)
	switch {
	case errors.Is(err, links.ErrInvalidLink):
		sendText(ctx, deps, userID, msgBadLink)
		return
	case errors.Is(err, links.ErrWrongChannel):
		sendText(ctx, deps, userID, msgWrongChannel)
		return
	case errors.Is(err, links.ErrTooOld):
		sendText(ctx, deps, userID, msgOldPost)
		return
	case err != nil:
		deps.Logger.ErrorContext(ctx, "Link validation failed", "user_id", userID, "error", err)
		sendText(ctx, deps, userID, msgBadLink)
		return
	}

	completed, err := deps.Course.SubmitPost(ctx, userID, state.Day, strings.TrimSpace(text))
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to record submission", "user_id", userID, "day", state.Day, "error", err)
		sendText(ctx, deps, userID, msgGenFailed)
		return
	}

	deps.Dialogs.Clear(userID)
	deps.Monitor.CountSubmission()

	if completed {
		sendText(ctx, deps, userID, msgCourseDone)
		return
	}
	sendText(ctx, deps, userID, msgSubmitted)
}

func buildPrompt(state *dialog.State) string {
	template := state.Task.PromptTemplate
	if template == "" {
		return fmt.Sprintf(
			"Write a social media post for this assignment:\n%s\n\nAuthor's answers:\n1. %s\n2. %s\n3. %s",
			state.Task.Assignment, state.Answers[0], state.Answers[1], state.Answers[2],
		)
	}
	return strings.NewReplacer(
		"{assignment}", state.Task.Assignment,
		"{answer_1}", state.Answers[0],
		"{answer_2}", state.Answers[1],
		"{answer_3}", state.Answers[2],
	).Replace(template)
}

func ackCallback(ctx context.Context, deps HandlerDeps, b *bot.Bot, callbackID string) {
	if _, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID}); err != nil {
		deps.Logger.DebugContext(ctx, "Failed to answer callback query", "error", err)
	}
}
