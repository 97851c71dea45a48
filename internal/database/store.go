package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// GetParticipant retrieves a participant by Telegram ID. Returns nil, nil if not found.
	GetParticipant(ctx context.Context, telegramID int64) (*Participant, error)

	// GetParticipantByEmail retrieves a participant by claimed email. Returns nil, nil if not found.
	GetParticipantByEmail(ctx context.Context, email string) (*Participant, error)

	// CreateParticipant inserts a new participant row.
	CreateParticipant(ctx context.Context, p *Participant) error

	// SaveParticipant updates all mutable fields of an existing participant.
	SaveParticipant(ctx context.Context, p *Participant) error

	// EmailAllowed reports whether the email is on the enrollment list.
	EmailAllowed(ctx context.Context, email string) (bool, error)

	// UpdateRegistrationState moves a participant through the sign-up funnel.
	UpdateRegistrationState(ctx context.Context, telegramID int64, state RegistrationState) error

	// ClaimEmail stores the verified email and identity fields and moves the
	// participant to the waiting-channel step.
	ClaimEmail(ctx context.Context, telegramID int64, email, firstName, username string) error

	// LinkChannel stores the participant's channel and completes registration.
	LinkChannel(ctx context.Context, telegramID int64, channelLink string) error

	// SetCourseStage writes the tagged course stage for one participant.
	SetCourseStage(ctx context.Context, telegramID int64, cs CourseStage) error

	// AssignTask sets current_task to the given day and the stage to in-progress.
	// Used by the daily broadcast after a successful delivery.
	AssignTask(ctx context.Context, telegramID int64, day int) error

	// AdmitLimited sets the limited stage and current_task for a late joiner.
	AdmitLimited(ctx context.Context, telegramID int64, day int) error

	// AdvanceTask conditionally moves current_task from one value to another.
	// Returns false when the participant's current_task no longer matches
	// (a concurrent submission already moved it).
	AdvanceTask(ctx context.Context, telegramID int64, from, to int) (bool, error)

	// AddPenalty atomically increments the penalty counter and applies the
	// excluded stage when the threshold is reached. Returns the new count.
	AddPenalty(ctx context.Context, telegramID int64, threshold int) (int, error)

	// MarkBlocked flags a participant whose chat is permanently unreachable.
	MarkBlocked(ctx context.Context, telegramID int64) error

	// MarkFinalMessageSent sets the sent flag for one closing message.
	MarkFinalMessageSent(ctx context.Context, telegramID int64, number int) error

	// ListEnrolled returns all deliverable participants still in the course.
	ListEnrolled(ctx context.Context) ([]*Participant, error)

	// ListByCurrentTask returns enrolled participants whose current_task equals day.
	ListByCurrentTask(ctx context.Context, day int) ([]*Participant, error)

	// ListCompleted returns participants who finished the course.
	ListCompleted(ctx context.Context) ([]*Participant, error)

	// ListForFinalMessage returns participants who reached the final task
	// (current_task >= minTask) and have not yet received closing message n.
	ListForFinalMessage(ctx context.Context, number, minTask int) ([]*Participant, error)

	// EnrollRegistered moves all registered participants into the course at day zero.
	EnrollRegistered(ctx context.Context) (int64, error)

	// ResetCourseData reverts all enrolled participants to the registered state
	// and clears their progress. Returns the number of affected rows.
	ResetCourseData(ctx context.Context) (int64, error)

	// GetCourseClock retrieves the clock singleton. Returns nil, nil if not found.
	GetCourseClock(ctx context.Context) (*CourseClock, error)

	// EnsureCourseClock creates the clock singleton if missing and returns it.
	EnsureCourseClock(ctx context.Context) (*CourseClock, error)

	// SaveCourseClock overwrites the clock singleton fields.
	SaveCourseClock(ctx context.Context, isActive bool, currentDay int, startDate *time.Time) error

	// GetTaskByDay retrieves task content for a day. Returns nil, nil if not found.
	GetTaskByDay(ctx context.Context, day int) (*Task, error)

	// GetFinalMessage retrieves a closing message by number. Returns nil, nil if not found.
	GetFinalMessage(ctx context.Context, number int) (*FinalMessage, error)

	// RecordSubmission stores a post link and advances the participant past the
	// submitted day in one transaction.
	RecordSubmission(ctx context.Context, telegramID int64, day int, link string, next CourseStage) error

	// GetSubmission retrieves a stored post link. Returns nil, nil if not found.
	GetSubmission(ctx context.Context, telegramID int64, day int) (*Submission, error)

	// ListCohort returns the Telegram IDs of a named cohort.
	ListCohort(ctx context.Context, cohort string) ([]int64, error)
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

const participantColumns = `id, created_at, updated_at, telegram_id, email, first_name, username,
	channel_link, registration_state, course_stage, course_stage_day, current_task,
	penalties, is_blocked, last_task_completed_at,
	final_message_1_sent, final_message_2_sent, final_message_3_sent`

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqlxStore) GetParticipant(ctx context.Context, telegramID int64) (*Participant, error) {
	if telegramID == 0 {
		return nil, fmt.Errorf("telegram_id cannot be zero")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var p Participant
	query := `SELECT ` + participantColumns + ` FROM participants WHERE telegram_id = ?`

	err := s.db.GetContext(ctx, &p, query, telegramID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No participant found", "telegram_id", telegramID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting participant", "telegram_id", telegramID, "error", err)
		return nil, fmt.Errorf("failed to get participant %d: %w", telegramID, err)
	}
	return &p, nil
}

func (s *sqlxStore) GetParticipantByEmail(ctx context.Context, email string) (*Participant, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	var p Participant
	query := `SELECT ` + participantColumns + ` FROM participants WHERE email = ?`

	err := s.db.GetContext(ctx, &p, query, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting participant by email", "error", err)
		return nil, fmt.Errorf("failed to get participant by email: %w", err)
	}
	return &p, nil
}

func (s *sqlxStore) CreateParticipant(ctx context.Context, p *Participant) error {
	if p == nil {
		return fmt.Errorf("cannot create nil participant")
	}
	if p.TelegramID == 0 {
		return fmt.Errorf("participant must have a non-zero telegram_id")
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.RegistrationState == "" {
		p.RegistrationState = RegistrationNew
	}
	if p.CourseStage == "" {
		p.CourseStage = StageNotStarted
	}

	query := `
        INSERT INTO participants (
            created_at, updated_at, telegram_id, email, first_name, username,
            channel_link, registration_state, course_stage, course_stage_day,
            current_task, penalties, is_blocked, last_task_completed_at,
            final_message_1_sent, final_message_2_sent, final_message_3_sent
        ) VALUES (
            :created_at, :updated_at, :telegram_id, :email, :first_name, :username,
            :channel_link, :registration_state, :course_stage, :course_stage_day,
            :current_task, :penalties, :is_blocked, :last_task_completed_at,
            :final_message_1_sent, :final_message_2_sent, :final_message_3_sent
        );
    `
	result, err := s.db.NamedExecContext(ctx, query, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error creating participant", "telegram_id", p.TelegramID, "error", err)
		return fmt.Errorf("failed to create participant %d: %w", p.TelegramID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		p.ID = uint(id)
	}

	s.logger.DebugContext(ctx, "Participant created", "telegram_id", p.TelegramID)
	return nil
}

func (s *sqlxStore) SaveParticipant(ctx context.Context, p *Participant) error {
	if p == nil {
		return fmt.Errorf("cannot save nil participant")
	}
	if p.TelegramID == 0 {
		return fmt.Errorf("participant must have a non-zero telegram_id")
	}

	p.UpdatedAt = time.Now().UTC()

	query := `
        UPDATE participants SET
            updated_at = :updated_at,
            email = :email,
            first_name = :first_name,
            username = :username,
            channel_link = :channel_link,
            registration_state = :registration_state,
            course_stage = :course_stage,
            course_stage_day = :course_stage_day,
            current_task = :current_task,
            penalties = :penalties,
            is_blocked = :is_blocked,
            last_task_completed_at = :last_task_completed_at,
            final_message_1_sent = :final_message_1_sent,
            final_message_2_sent = :final_message_2_sent,
            final_message_3_sent = :final_message_3_sent
        WHERE telegram_id = :telegram_id
    `
	result, err := s.db.NamedExecContext(ctx, query, p)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving participant", "telegram_id", p.TelegramID, "error", err)
		return fmt.Errorf("failed to save participant %d: %w", p.TelegramID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Unexpected number of rows affected when saving participant",
			"telegram_id", p.TelegramID, "affected", affected)
	}
	return nil
}

func (s *sqlxStore) EmailAllowed(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, fmt.Errorf("email cannot be empty")
	}

	var one int
	err := s.db.GetContext(ctx, &one, `SELECT 1 FROM enrollment_emails WHERE email = ? LIMIT 1`, email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check enrollment email: %w", err)
	}
	return true, nil
}

func (s *sqlxStore) UpdateRegistrationState(ctx context.Context, telegramID int64, state RegistrationState) error {
	query := `UPDATE participants SET registration_state = ?, updated_at = ? WHERE telegram_id = ?`
	if _, err := s.db.ExecContext(ctx, query, state, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error updating registration state",
			"telegram_id", telegramID, "state", state, "error", err)
		return fmt.Errorf("failed to update registration state for %d: %w", telegramID, err)
	}
	return nil
}

func (s *sqlxStore) ClaimEmail(ctx context.Context, telegramID int64, email, firstName, username string) error {
	query := `
        UPDATE participants SET
            email = ?, first_name = ?, username = ?,
            registration_state = ?, updated_at = ?
        WHERE telegram_id = ?
    `
	user := sql.NullString{String: username, Valid: username != ""}
	if _, err := s.db.ExecContext(ctx, query, email, firstName, user,
		RegistrationWaitingChannel, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error claiming email", "telegram_id", telegramID, "error", err)
		return fmt.Errorf("failed to claim email for %d: %w", telegramID, err)
	}
	s.logger.DebugContext(ctx, "Email claimed", "telegram_id", telegramID)
	return nil
}

func (s *sqlxStore) LinkChannel(ctx context.Context, telegramID int64, channelLink string) error {
	if channelLink == "" {
		return fmt.Errorf("channel link cannot be empty")
	}
	query := `
        UPDATE participants SET
            channel_link = ?, registration_state = ?, updated_at = ?
        WHERE telegram_id = ?
    `
	if _, err := s.db.ExecContext(ctx, query, channelLink, RegistrationDone,
		time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error linking channel", "telegram_id", telegramID, "error", err)
		return fmt.Errorf("failed to link channel for %d: %w", telegramID, err)
	}
	s.logger.DebugContext(ctx, "Channel linked", "telegram_id", telegramID)
	return nil
}

func (s *sqlxStore) SetCourseStage(ctx context.Context, telegramID int64, cs CourseStage) error {
	query := `UPDATE participants SET course_stage = ?, course_stage_day = ?, updated_at = ? WHERE telegram_id = ?`
	if _, err := s.db.ExecContext(ctx, query, cs.Stage, cs.Day, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error setting course stage",
			"telegram_id", telegramID, "stage", cs.Stage, "error", err)
		return fmt.Errorf("failed to set course stage for %d: %w", telegramID, err)
	}
	return nil
}

func (s *sqlxStore) AssignTask(ctx context.Context, telegramID int64, day int) error {
	query := `
        UPDATE participants SET
            current_task = ?, course_stage = ?, course_stage_day = 0, updated_at = ?
        WHERE telegram_id = ?
    `
	if _, err := s.db.ExecContext(ctx, query, day, StageInProgress, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error assigning task", "telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to assign task day %d to %d: %w", day, telegramID, err)
	}
	return nil
}

func (s *sqlxStore) AdmitLimited(ctx context.Context, telegramID int64, day int) error {
	query := `
        UPDATE participants SET
            current_task = ?, course_stage = ?, course_stage_day = ?, updated_at = ?
        WHERE telegram_id = ?
    `
	if _, err := s.db.ExecContext(ctx, query, day, StageLimited, day, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error admitting limited participant",
			"telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to admit participant %d on day %d: %w", telegramID, day, err)
	}
	return nil
}

func (s *sqlxStore) AdvanceTask(ctx context.Context, telegramID int64, from, to int) (bool, error) {
	// Conditional write: a concurrent submission may already have moved
	// current_task, in which case this is a deliberate no-op.
	query := `UPDATE participants SET current_task = ?, updated_at = ? WHERE telegram_id = ? AND current_task = ?`
	result, err := s.db.ExecContext(ctx, query, to, time.Now().UTC(), telegramID, from)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error advancing task", "telegram_id", telegramID, "from", from, "to", to, "error", err)
		return false, fmt.Errorf("failed to advance task for %d: %w", telegramID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}

func (s *sqlxStore) AddPenalty(ctx context.Context, telegramID int64, threshold int) (int, error) {
	if threshold <= 0 {
		return 0, fmt.Errorf("penalty threshold must be positive")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for penalty", "telegram_id", telegramID, "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        UPDATE participants SET
            penalties = penalties + 1,
            course_stage = CASE WHEN penalties + 1 >= ? THEN ? ELSE course_stage END,
            course_stage_day = CASE WHEN penalties + 1 >= ? THEN 0 ELSE course_stage_day END,
            updated_at = ?
        WHERE telegram_id = ?
    `
	if _, err := tx.ExecContext(ctx, query, threshold, StageExcluded, threshold,
		time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error adding penalty", "telegram_id", telegramID, "error", err)
		return 0, fmt.Errorf("failed to add penalty for %d: %w", telegramID, err)
	}

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT penalties FROM participants WHERE telegram_id = ?`, telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error reading penalty count", "telegram_id", telegramID, "error", err)
		return 0, fmt.Errorf("failed to read penalty count for %d: %w", telegramID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit penalty transaction", "telegram_id", telegramID, "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Penalty recorded", "telegram_id", telegramID, "penalties", count)
	return count, nil
}

func (s *sqlxStore) MarkBlocked(ctx context.Context, telegramID int64) error {
	query := `UPDATE participants SET is_blocked = 1, updated_at = ? WHERE telegram_id = ?`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error marking participant blocked", "telegram_id", telegramID, "error", err)
		return fmt.Errorf("failed to mark participant %d blocked: %w", telegramID, err)
	}
	s.logger.InfoContext(ctx, "Participant marked as blocked", "telegram_id", telegramID)
	return nil
}

func (s *sqlxStore) MarkFinalMessageSent(ctx context.Context, telegramID int64, number int) error {
	if number < 1 || number > 3 {
		return fmt.Errorf("final message number must be 1..3, got %d", number)
	}
	query := fmt.Sprintf(`UPDATE participants SET final_message_%d_sent = 1, updated_at = ? WHERE telegram_id = ?`, number)
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC(), telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error marking final message sent",
			"telegram_id", telegramID, "number", number, "error", err)
		return fmt.Errorf("failed to mark final message %d sent for %d: %w", number, telegramID, err)
	}
	return nil
}

func (s *sqlxStore) ListEnrolled(ctx context.Context) ([]*Participant, error) {
	var participants []*Participant
	query := `SELECT ` + participantColumns + ` FROM participants
	          WHERE course_stage IN (?, ?, ?) AND is_blocked = 0
	          ORDER BY telegram_id`

	err := s.db.SelectContext(ctx, &participants, query, StageInProgress, StageWaitingTask, StageLimited)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing enrolled participants", "error", err)
		return nil, fmt.Errorf("failed to list enrolled participants: %w", err)
	}
	return participants, nil
}

func (s *sqlxStore) ListByCurrentTask(ctx context.Context, day int) ([]*Participant, error) {
	var participants []*Participant
	query := `SELECT ` + participantColumns + ` FROM participants
	          WHERE current_task = ? AND course_stage IN (?, ?) AND is_blocked = 0
	          ORDER BY telegram_id`

	err := s.db.SelectContext(ctx, &participants, query, day, StageInProgress, StageLimited)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing participants by current task", "day", day, "error", err)
		return nil, fmt.Errorf("failed to list participants on task %d: %w", day, err)
	}
	return participants, nil
}

func (s *sqlxStore) ListCompleted(ctx context.Context) ([]*Participant, error) {
	var participants []*Participant
	query := `SELECT ` + participantColumns + ` FROM participants
	          WHERE course_stage = ? AND is_blocked = 0
	          ORDER BY telegram_id`

	err := s.db.SelectContext(ctx, &participants, query, StageCompleted)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing completed participants", "error", err)
		return nil, fmt.Errorf("failed to list completed participants: %w", err)
	}
	return participants, nil
}

func (s *sqlxStore) ListForFinalMessage(ctx context.Context, number, minTask int) ([]*Participant, error) {
	if number < 1 || number > 3 {
		return nil, fmt.Errorf("final message number must be 1..3, got %d", number)
	}

	// Everyone who reached the final task gets the closing sequence, whether
	// they submitted it or were advanced past it by a penalty.
	var participants []*Participant
	query := fmt.Sprintf(`SELECT `+participantColumns+` FROM participants
	          WHERE current_task >= ? AND is_blocked = 0 AND final_message_%d_sent = 0
	          ORDER BY telegram_id`, number)

	err := s.db.SelectContext(ctx, &participants, query, minTask)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error listing participants for final message", "number", number, "error", err)
		return nil, fmt.Errorf("failed to list participants for final message %d: %w", number, err)
	}
	return participants, nil
}

func (s *sqlxStore) EnrollRegistered(ctx context.Context) (int64, error) {
	query := `
        UPDATE participants SET
            course_stage = ?, course_stage_day = 0,
            current_task = 0, penalties = 0, updated_at = ?
        WHERE registration_state = ? AND course_stage = ?
    `
	result, err := s.db.ExecContext(ctx, query, StageInProgress, time.Now().UTC(),
		RegistrationDone, StageNotStarted)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error enrolling registered participants", "error", err)
		return 0, fmt.Errorf("failed to enroll registered participants: %w", err)
	}
	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Enrolled registered participants", "count", count)
	return count, nil
}

func (s *sqlxStore) ResetCourseData(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for course reset", "error", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        UPDATE participants SET
            course_stage = ?, course_stage_day = 0,
            current_task = 0, penalties = 0,
            last_task_completed_at = NULL,
            final_message_1_sent = 0, final_message_2_sent = 0, final_message_3_sent = 0,
            updated_at = ?
        WHERE course_stage != ?
    `
	result, err := tx.ExecContext(ctx, query, StageNotStarted, time.Now().UTC(), StageNotStarted)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error resetting participant course data", "error", err)
		return 0, fmt.Errorf("failed to reset participant course data: %w", err)
	}
	count, _ := result.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions`); err != nil {
		s.logger.ErrorContext(ctx, "Error clearing submissions during reset", "error", err)
		return 0, fmt.Errorf("failed to clear submissions: %w", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit course reset transaction", "error", err)
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.InfoContext(ctx, "Course data reset", "participants_reset", count)
	return count, nil
}

func (s *sqlxStore) GetCourseClock(ctx context.Context) (*CourseClock, error) {
	var clock CourseClock
	query := `SELECT id, is_active, current_day, start_date, updated_at FROM course_clock WHERE id = 1`

	err := s.db.GetContext(ctx, &clock, query)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting course clock", "error", err)
		return nil, fmt.Errorf("failed to get course clock: %w", err)
	}
	return &clock, nil
}

func (s *sqlxStore) EnsureCourseClock(ctx context.Context) (*CourseClock, error) {
	query := `INSERT INTO course_clock (id, is_active, current_day, start_date, updated_at)
	          VALUES (1, 0, 0, NULL, ?)
	          ON CONFLICT (id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "Error ensuring course clock", "error", err)
		return nil, fmt.Errorf("failed to ensure course clock: %w", err)
	}

	clock, err := s.GetCourseClock(ctx)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		return nil, fmt.Errorf("course clock missing after ensure")
	}
	return clock, nil
}

func (s *sqlxStore) SaveCourseClock(ctx context.Context, isActive bool, currentDay int, startDate *time.Time) error {
	var start sql.NullTime
	if startDate != nil {
		start = sql.NullTime{Time: startDate.UTC(), Valid: true}
	}

	query := `UPDATE course_clock SET is_active = ?, current_day = ?, start_date = ?, updated_at = ? WHERE id = 1`
	result, err := s.db.ExecContext(ctx, query, isActive, currentDay, start, time.Now().UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving course clock",
			"is_active", isActive, "current_day", currentDay, "error", err)
		return fmt.Errorf("failed to save course clock: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected != 1 {
		s.logger.WarnContext(ctx, "Course clock row missing on save", "affected", affected)
		return fmt.Errorf("course clock row missing, run EnsureCourseClock first")
	}

	s.logger.DebugContext(ctx, "Course clock saved", "is_active", isActive, "current_day", currentDay)
	return nil
}

func (s *sqlxStore) GetTaskByDay(ctx context.Context, day int) (*Task, error) {
	var task Task
	query := `SELECT id, day, assignment, question_1, question_2, question_3, prompt_template
	          FROM tasks WHERE day = ?`

	err := s.db.GetContext(ctx, &task, query, day)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No task content found", "day", day)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting task content", "day", day, "error", err)
		return nil, fmt.Errorf("failed to get task for day %d: %w", day, err)
	}
	return &task, nil
}

func (s *sqlxStore) GetFinalMessage(ctx context.Context, number int) (*FinalMessage, error) {
	var msg FinalMessage
	query := `SELECT id, number, body FROM final_messages WHERE number = ?`

	err := s.db.GetContext(ctx, &msg, query, number)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting final message", "number", number, "error", err)
		return nil, fmt.Errorf("failed to get final message %d: %w", number, err)
	}
	return &msg, nil
}

func (s *sqlxStore) RecordSubmission(ctx context.Context, telegramID int64, day int, link string, next CourseStage) error {
	if link == "" {
		return fmt.Errorf("submission link cannot be empty")
	}
	if day < 1 {
		return fmt.Errorf("submission day must be positive, got %d", day)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for submission",
			"telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	now := time.Now().UTC()

	subQuery := `
        INSERT INTO submissions (created_at, telegram_id, day, link)
        VALUES (?, ?, ?, ?)
        ON CONFLICT (telegram_id, day) DO UPDATE SET link = excluded.link
    `
	if _, err := tx.ExecContext(ctx, subQuery, now, telegramID, day, link); err != nil {
		s.logger.ErrorContext(ctx, "Error saving submission", "telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to save submission for %d day %d: %w", telegramID, day, err)
	}

	partQuery := `
        UPDATE participants SET
            current_task = ?, course_stage = ?, course_stage_day = ?,
            last_task_completed_at = ?, updated_at = ?
        WHERE telegram_id = ?
    `
	if _, err := tx.ExecContext(ctx, partQuery, day+1, next.Stage, next.Day, now, now, telegramID); err != nil {
		s.logger.ErrorContext(ctx, "Error advancing participant after submission",
			"telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to advance participant %d after submission: %w", telegramID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit submission transaction",
			"telegram_id", telegramID, "day", day, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	tx = nil

	s.logger.DebugContext(ctx, "Submission recorded", "telegram_id", telegramID, "day", day, "next_stage", next.Stage)
	return nil
}

func (s *sqlxStore) GetSubmission(ctx context.Context, telegramID int64, day int) (*Submission, error) {
	var sub Submission
	query := `SELECT id, created_at, telegram_id, day, link FROM submissions WHERE telegram_id = ? AND day = ?`

	err := s.db.GetContext(ctx, &sub, query, telegramID, day)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting submission", "telegram_id", telegramID, "day", day, "error", err)
		return nil, fmt.Errorf("failed to get submission for %d day %d: %w", telegramID, day, err)
	}
	return &sub, nil
}

func (s *sqlxStore) ListCohort(ctx context.Context, cohort string) ([]int64, error) {
	if cohort == "" {
		return nil, fmt.Errorf("cohort name cannot be empty")
	}

	var ids []int64
	query := `SELECT telegram_id FROM cohort_members WHERE cohort = ? ORDER BY telegram_id`
	if err := s.db.SelectContext(ctx, &ids, query, cohort); err != nil {
		s.logger.ErrorContext(ctx, "Error listing cohort members", "cohort", cohort, "error", err)
		return nil, fmt.Errorf("failed to list cohort %q: %w", cohort, err)
	}
	return ids, nil
}
