package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/avoronin/sprintbot/internal/config"
	"github.com/avoronin/sprintbot/internal/database"
)

var (
	// ErrCourseActive is returned by Start when a course is already running.
	ErrCourseActive = errors.New("course is already active")

	// ErrCourseInactive is returned by Stop when no course is running.
	ErrCourseInactive = errors.New("no active course")

	// ErrNotConfirmed is returned by Stop without the confirmation token.
	ErrNotConfirmed = errors.New("stop requires confirmation")

	// ErrNoTaskContent is returned when a day has no task row.
	ErrNoTaskContent = errors.New("no task content for day")
)

// Admission classifies what happened when a late joiner finished registration.
type Admission int

const (
	// AdmissionWaiting means no course is running; the participant will be
	// enrolled by the next course start.
	AdmissionWaiting Admission = iota
	// AdmissionEnrolled means the course started today but the first task
	// has not been broadcast yet; the participant joins the broadcast.
	AdmissionEnrolled
	// AdmissionDayOne means the day-1 task was delivered immediately.
	AdmissionDayOne
	// AdmissionLimited means the participant joined mid-course in limited
	// mode and received the current day's task.
	AdmissionLimited
)

// StartResult reports the outcome of starting a course.
type StartResult struct {
	Enrolled int64
}

// Service is the course engine. All scheduled tasks and the admin override
// commands go through the same methods.
type Service struct {
	store  database.Store
	msg    Messenger
	rep    Reporter
	cfg    *config.Config
	logger *slog.Logger
	sleep  func(time.Duration)
}

// NewService creates the course engine.
func NewService(store database.Store, msg Messenger, rep Reporter, cfg *config.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		msg:    msg,
		rep:    rep,
		cfg:    cfg,
		logger: logger.With("component", "course"),
		sleep:  time.Sleep,
	}
}

// EnsureClock creates the course clock singleton if it does not exist yet.
// Called once at startup so every later operation can rely on the row.
func (s *Service) EnsureClock(ctx context.Context) error {
	_, err := s.store.EnsureCourseClock(ctx)
	return err
}

// Start activates the course at day zero and enrolls every registered
// participant. The first task goes out with the next broadcast.
func (s *Service) Start(ctx context.Context) (*StartResult, error) {
	clock, err := s.store.EnsureCourseClock(ctx)
	if err != nil {
		return nil, err
	}
	if clock.IsActive {
		return nil, fmt.Errorf("%w (day %d)", ErrCourseActive, clock.CurrentDay)
	}

	now := time.Now().UTC()
	if err := s.store.SaveCourseClock(ctx, true, 0, &now); err != nil {
		return nil, err
	}

	enrolled, err := s.store.EnrollRegistered(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Course started", "enrolled", enrolled)
	s.rep.Event(ctx, fmt.Sprintf("Course started, %d participants enrolled.", enrolled))
	return &StartResult{Enrolled: enrolled}, nil
}

// Stop deactivates the course and resets every participant's progress.
// It refuses to run without the confirmation token.
func (s *Service) Stop(ctx context.Context, confirmed bool) (int64, error) {
	if !confirmed {
		return 0, ErrNotConfirmed
	}

	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return 0, err
	}
	if clock == nil || !clock.IsActive {
		return 0, ErrCourseInactive
	}

	count, err := s.store.ResetCourseData(ctx)
	if err != nil {
		return 0, err
	}
	if err := s.store.SaveCourseClock(ctx, false, 0, nil); err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Course stopped", "participants_reset", count)
	s.rep.Event(ctx, fmt.Sprintf("Course stopped, %d participants reset.", count))
	return count, nil
}

// AdvanceDay moves the global clock one day forward. Past the last course
// day the clock is deactivated and finishers receive their congratulation.
func (s *Service) AdvanceDay(ctx context.Context) error {
	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return err
	}
	if clock == nil || !clock.IsActive {
		s.logger.DebugContext(ctx, "Advance skipped, no active course")
		return nil
	}

	start := clockStart(clock)
	next := clock.CurrentDay + 1

	if next <= s.cfg.Course.Days {
		if err := s.store.SaveCourseClock(ctx, true, next, start); err != nil {
			return err
		}
		s.logger.InfoContext(ctx, "Course day advanced", "day", next)
		return nil
	}

	// Course over: freeze the clock at the final day and congratulate
	// everyone who made it through.
	if err := s.store.SaveCourseClock(ctx, false, s.cfg.Course.Days, start); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Course finished", "days", s.cfg.Course.Days)

	finishers, err := s.store.ListCompleted(ctx)
	if err != nil {
		return err
	}
	for _, p := range finishers {
		text := fmt.Sprintf(msgCompletion, p.FirstName, p.Penalties)
		if err := s.deliver(ctx, p.TelegramID, text, SendOptions{}); err != nil {
			s.logger.WarnContext(ctx, "Failed to send completion message",
				"telegram_id", p.TelegramID, "error", err)
		}
		s.sleep(s.cfg.Telegram.SendPause)
	}
	s.rep.CompletionReport(ctx, len(finishers))
	return nil
}

// BroadcastTask sends the current day's task to every enrolled participant
// and assigns it as their current task. On the first broadcast after Start
// the clock is bumped from day zero to day one.
func (s *Service) BroadcastTask(ctx context.Context) error {
	day, task, err := s.broadcastDay(ctx)
	if err != nil || task == nil {
		return err
	}

	participants, err := s.store.ListEnrolled(ctx)
	if err != nil {
		return err
	}

	sent, failed := 0, 0
	for _, p := range participants {
		if err := s.sendTask(ctx, p.TelegramID, task); err != nil {
			s.logger.WarnContext(ctx, "Failed to deliver task",
				"telegram_id", p.TelegramID, "day", day, "error", err)
			failed++
			continue
		}
		if err := s.store.AssignTask(ctx, p.TelegramID, day); err != nil {
			s.logger.ErrorContext(ctx, "Failed to assign task after delivery",
				"telegram_id", p.TelegramID, "day", day, "error", err)
			failed++
			continue
		}
		sent++
		s.sleep(s.cfg.Telegram.SendPause)
	}

	s.logger.InfoContext(ctx, "Task broadcast finished", "day", day, "sent", sent, "failed", failed)
	s.rep.BroadcastReport(ctx, day, sent, failed)
	return nil
}

// BroadcastTaskToOne delivers the current day's task to a single
// participant, using the exact same day resolution and progress writes as
// the scheduled broadcast. Returns the broadcast day.
func (s *Service) BroadcastTaskToOne(ctx context.Context, telegramID int64) (int, error) {
	day, task, err := s.broadcastDay(ctx)
	if err != nil {
		return 0, err
	}
	if task == nil {
		return 0, ErrCourseInactive
	}

	if err := s.sendTask(ctx, telegramID, task); err != nil {
		return 0, err
	}
	if err := s.store.AssignTask(ctx, telegramID, day); err != nil {
		return 0, err
	}
	return day, nil
}

// SendReminder nudges everyone whose current task is today's still
// unsubmitted task. Reminders never mutate participant state.
func (s *Service) SendReminder(ctx context.Context, number int) error {
	if number < 1 || number > 3 {
		return fmt.Errorf("reminder number must be 1..3, got %d", number)
	}

	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return err
	}
	if clock == nil || !clock.IsActive || clock.CurrentDay < 1 || clock.CurrentDay > s.cfg.Course.Days {
		s.logger.DebugContext(ctx, "Reminder skipped, no active course day", "number", number)
		return nil
	}
	day := clock.CurrentDay

	participants, err := s.store.ListByCurrentTask(ctx, day)
	if err != nil {
		return err
	}

	text := reminderMessage(number)
	sent, failed := 0, 0
	for _, p := range participants {
		if err := s.deliver(ctx, p.TelegramID, text, SendOptions{Keyboard: KeyboardTask}); err != nil {
			s.logger.WarnContext(ctx, "Failed to deliver reminder",
				"telegram_id", p.TelegramID, "number", number, "error", err)
			failed++
			continue
		}
		sent++
		s.sleep(s.cfg.Telegram.SendPause)
	}

	s.logger.InfoContext(ctx, "Reminder finished", "number", number, "day", day, "sent", sent, "failed", failed)
	s.rep.ReminderReport(ctx, number, day, sent, failed)
	return nil
}

// CheckCompletion applies the end-of-day decision to every enrolled
// participant: penalize and advance those stuck on today's task, advance
// never-started participants without penalty, leave everyone else alone.
func (s *Service) CheckCompletion(ctx context.Context) error {
	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return err
	}
	if clock == nil || !clock.IsActive || clock.CurrentDay < 1 || clock.CurrentDay > s.cfg.Course.Days {
		s.logger.DebugContext(ctx, "Completion check skipped, no active course day")
		return nil
	}
	day := clock.CurrentDay

	participants, err := s.store.ListEnrolled(ctx)
	if err != nil {
		return err
	}

	tallies := make(map[int][]int64)
	for _, p := range participants {
		switch {
		case p.CurrentTask == day:
			s.penalize(ctx, p, day, tallies)

		case p.CurrentTask == 0:
			// Never received a task yet (enrolled after the broadcast).
			// Move along with the group without penalty.
			if _, err := s.store.AdvanceTask(ctx, p.TelegramID, 0, day+1); err != nil {
				s.logger.ErrorContext(ctx, "Failed to advance idle participant",
					"telegram_id", p.TelegramID, "error", err)
			}

		case p.CurrentTask > day:
			// Already submitted, nothing to do.

		default:
			s.logger.WarnContext(ctx, "Participant behind the course day",
				"telegram_id", p.TelegramID, "current_task", p.CurrentTask, "day", day)
		}
	}

	s.logger.InfoContext(ctx, "Completion check finished", "day", day, "penalized", len(tallies))
	if len(tallies) > 0 {
		s.rep.PenaltyReport(ctx, day, tallies)
	}
	return nil
}

// SendFinalMessages delivers the closing message sequence to everyone who
// reached the final task, whether or not they submitted it. Each message is
// gated by a per-participant sent flag, so re-firing the task is a no-op.
func (s *Service) SendFinalMessages(ctx context.Context) error {
	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return err
	}
	if clock == nil || clock.IsActive || clock.CurrentDay < s.cfg.Course.Days {
		s.logger.DebugContext(ctx, "Final messages skipped, course not finished")
		return nil
	}

	for number := 1; number <= 3; number++ {
		msg, err := s.store.GetFinalMessage(ctx, number)
		if err != nil {
			return err
		}
		if msg == nil {
			s.logger.WarnContext(ctx, "Final message content missing", "number", number)
			continue
		}

		participants, err := s.store.ListForFinalMessage(ctx, number, s.cfg.Course.Days)
		if err != nil {
			return err
		}

		for _, p := range participants {
			if err := s.deliver(ctx, p.TelegramID, msg.Body, SendOptions{}); err != nil {
				s.logger.WarnContext(ctx, "Failed to deliver final message",
					"telegram_id", p.TelegramID, "number", number, "error", err)
				continue
			}
			if err := s.store.MarkFinalMessageSent(ctx, p.TelegramID, number); err != nil {
				s.logger.ErrorContext(ctx, "Failed to flag final message",
					"telegram_id", p.TelegramID, "number", number, "error", err)
			}
			s.sleep(s.cfg.Telegram.SendPause)
		}
	}
	return nil
}

// AdmitLateJoiner reconciles a freshly registered participant against the
// course clock and delivers the appropriate task content immediately.
func (s *Service) AdmitLateJoiner(ctx context.Context, telegramID int64) (Admission, error) {
	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return AdmissionWaiting, err
	}
	if clock == nil || !clock.IsActive {
		return AdmissionWaiting, nil
	}

	day := clock.CurrentDay
	switch {
	case day == 0:
		// Course started today, first broadcast still ahead: join it.
		if err := s.store.SetCourseStage(ctx, telegramID, database.InProgress()); err != nil {
			return AdmissionWaiting, err
		}
		return AdmissionEnrolled, nil

	case day == 1:
		task, err := s.store.GetTaskByDay(ctx, 1)
		if err != nil {
			return AdmissionWaiting, err
		}
		if task == nil {
			return AdmissionWaiting, fmt.Errorf("%w 1", ErrNoTaskContent)
		}
		if err := s.deliver(ctx, telegramID, msgLateJoinerDayOne, SendOptions{}); err != nil {
			return AdmissionWaiting, err
		}
		if err := s.sendTask(ctx, telegramID, task); err != nil {
			return AdmissionWaiting, err
		}
		if err := s.store.AssignTask(ctx, telegramID, 1); err != nil {
			return AdmissionWaiting, err
		}
		return AdmissionDayOne, nil

	default:
		if day > s.cfg.Course.Days {
			return AdmissionWaiting, nil
		}
		task, err := s.store.GetTaskByDay(ctx, day)
		if err != nil {
			return AdmissionWaiting, err
		}
		if task == nil {
			return AdmissionWaiting, fmt.Errorf("%w %d", ErrNoTaskContent, day)
		}
		if err := s.deliver(ctx, telegramID, msgLateJoinerLimited, SendOptions{}); err != nil {
			return AdmissionWaiting, err
		}
		if err := s.sendTask(ctx, telegramID, task); err != nil {
			return AdmissionWaiting, err
		}
		if err := s.store.AdmitLimited(ctx, telegramID, day); err != nil {
			return AdmissionWaiting, err
		}
		return AdmissionLimited, nil
	}
}

// SubmitPost records a validated post link and moves the participant past
// the submitted day. Returns true when this submission completed the course.
func (s *Service) SubmitPost(ctx context.Context, telegramID int64, day int, link string) (bool, error) {
	completed := day >= s.cfg.Course.Days

	next := database.WaitingTask(day)
	if completed {
		next = database.Completed()
	}

	if err := s.store.RecordSubmission(ctx, telegramID, day, link, next); err != nil {
		return false, err
	}

	s.logger.InfoContext(ctx, "Post submitted", "telegram_id", telegramID, "day", day, "completed", completed)
	return completed, nil
}

// penalize handles the stuck-on-today branch of the completion check.
func (s *Service) penalize(ctx context.Context, p *database.Participant, day int, tallies map[int][]int64) {
	count, err := s.store.AddPenalty(ctx, p.TelegramID, s.cfg.Course.PenaltyLimit)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to add penalty", "telegram_id", p.TelegramID, "error", err)
		return
	}
	tallies[count] = append(tallies[count], p.TelegramID)

	if err := s.deliver(ctx, p.TelegramID, penaltyMessage(min(count, 4)), SendOptions{}); err != nil {
		s.logger.WarnContext(ctx, "Failed to deliver penalty message",
			"telegram_id", p.TelegramID, "error", err)
	}

	if count >= s.cfg.Course.PenaltyLimit && s.cfg.Telegram.CourseChatID != 0 {
		// Best effort: exclusion stands even if the ban fails.
		if err := s.msg.BanChatMember(ctx, s.cfg.Telegram.CourseChatID, p.TelegramID); err != nil {
			s.logger.WarnContext(ctx, "Failed to ban excluded participant from course chat",
				"telegram_id", p.TelegramID, "error", err)
		}
	}

	if _, err := s.store.AdvanceTask(ctx, p.TelegramID, day, day+1); err != nil {
		s.logger.ErrorContext(ctx, "Failed to advance penalized participant",
			"telegram_id", p.TelegramID, "error", err)
	}
}

// broadcastDay resolves the day the broadcast should deliver, bumping the
// clock out of day zero on the first broadcast. Returns a nil task when no
// broadcast is due.
func (s *Service) broadcastDay(ctx context.Context) (int, *database.Task, error) {
	clock, err := s.store.GetCourseClock(ctx)
	if err != nil {
		return 0, nil, err
	}
	if clock == nil || !clock.IsActive {
		s.logger.DebugContext(ctx, "Broadcast skipped, no active course")
		return 0, nil, nil
	}

	day := clock.CurrentDay
	if day == 0 {
		day = 1
		if err := s.store.SaveCourseClock(ctx, true, day, clockStart(clock)); err != nil {
			return 0, nil, err
		}
		s.logger.InfoContext(ctx, "First broadcast, clock bumped to day one")
	}
	if day > s.cfg.Course.Days {
		s.logger.DebugContext(ctx, "Broadcast skipped, course past final day", "day", day)
		return 0, nil, nil
	}

	task, err := s.store.GetTaskByDay(ctx, day)
	if err != nil {
		return 0, nil, err
	}
	if task == nil {
		s.rep.Event(ctx, fmt.Sprintf("Broadcast aborted: no task content for day %d.", day))
		return 0, nil, fmt.Errorf("%w %d", ErrNoTaskContent, day)
	}
	return day, task, nil
}

// sendTask delivers one task message with the optional day image and the
// task keyboard.
func (s *Service) sendTask(ctx context.Context, telegramID int64, task *database.Task) error {
	opts := SendOptions{Keyboard: KeyboardTask}
	if s.cfg.Course.TaskImageDir != "" {
		opts.PhotoPath = filepath.Join(s.cfg.Course.TaskImageDir, fmt.Sprintf("%d.jpg", task.Day))
	}
	return s.deliver(ctx, telegramID, taskMessage(task.Day, task.Assignment), opts)
}

// deliver sends one message and flags the participant on a permanent
// delivery failure.
func (s *Service) deliver(ctx context.Context, telegramID int64, text string, opts SendOptions) error {
	err := s.msg.SendMessage(ctx, telegramID, text, opts)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeliveryPermanent) {
		if markErr := s.store.MarkBlocked(ctx, telegramID); markErr != nil {
			s.logger.ErrorContext(ctx, "Failed to mark blocked participant",
				"telegram_id", telegramID, "error", markErr)
		}
	}
	return err
}

func clockStart(clock *database.CourseClock) *time.Time {
	if clock.StartDate.Valid {
		t := clock.StartDate.Time
		return &t
	}
	return nil
}
