package database

import (
	"database/sql"
	"time"
)

// RegistrationState tracks where a participant is in the sign-up funnel.
type RegistrationState string

const (
	RegistrationNew            RegistrationState = "new"
	RegistrationWaitingEmail   RegistrationState = "waiting_email"
	RegistrationWaitingChannel RegistrationState = "waiting_channel"
	RegistrationDone           RegistrationState = "registered"
)

// Stage is the participant's position in the course lifecycle.
type Stage string

const (
	StageNotStarted  Stage = "not_started"
	StageInProgress  Stage = "in_progress"
	StageWaitingTask Stage = "waiting_task"
	StageLimited     Stage = "limited"
	StageCompleted   Stage = "completed"
	StageExcluded    Stage = "excluded"
)

// CourseStage pairs a Stage with the day it refers to. The day is only
// meaningful for StageWaitingTask (the day whose task was submitted) and
// StageLimited (the day the participant was admitted on).
type CourseStage struct {
	Stage Stage
	Day   int
}

// InProgress returns the in-progress stage value.
func InProgress() CourseStage { return CourseStage{Stage: StageInProgress} }

// WaitingTask marks the given day's task as submitted.
func WaitingTask(day int) CourseStage { return CourseStage{Stage: StageWaitingTask, Day: day} }

// Completed returns the completed stage value.
func Completed() CourseStage { return CourseStage{Stage: StageCompleted} }

// Participant is a registered course member keyed by their Telegram ID.
type Participant struct {
	ID        uint      `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	TelegramID  int64          `db:"telegram_id"`
	Email       string         `db:"email"`
	FirstName   string         `db:"first_name"`
	Username    sql.NullString `db:"username"`
	ChannelLink sql.NullString `db:"channel_link"`

	RegistrationState RegistrationState `db:"registration_state"`
	CourseStage       Stage             `db:"course_stage"`
	CourseStageDay    int               `db:"course_stage_day"`
	CurrentTask       int               `db:"current_task"`
	Penalties         int               `db:"penalties"`
	IsBlocked         bool              `db:"is_blocked"`

	LastTaskCompletedAt sql.NullTime `db:"last_task_completed_at"`

	FinalMessage1Sent bool `db:"final_message_1_sent"`
	FinalMessage2Sent bool `db:"final_message_2_sent"`
	FinalMessage3Sent bool `db:"final_message_3_sent"`
}

// SetCourse stores a tagged course stage back into the row fields.
func (p *Participant) SetCourse(cs CourseStage) {
	p.CourseStage = cs.Stage
	p.CourseStageDay = cs.Day
}

// Enrolled reports whether the participant is still taking part in an
// active course (has a task assigned or is waiting for the next one).
func (p *Participant) Enrolled() bool {
	switch p.CourseStage {
	case StageInProgress, StageWaitingTask, StageLimited:
		return true
	}
	return false
}

// CourseClock is the single global course state row (id = 1).
type CourseClock struct {
	ID         int          `db:"id"`
	IsActive   bool         `db:"is_active"`
	CurrentDay int          `db:"current_day"`
	StartDate  sql.NullTime `db:"start_date"`
	UpdatedAt  time.Time    `db:"updated_at"`
}

// Task is the content for one course day: the assignment text, the three
// setup questions and the generation prompt template.
type Task struct {
	ID             uint   `db:"id"`
	Day            int    `db:"day"`
	Assignment     string `db:"assignment"`
	Question1      string `db:"question_1"`
	Question2      string `db:"question_2"`
	Question3      string `db:"question_3"`
	PromptTemplate string `db:"prompt_template"`
}

// Question returns question text by its 1-based number.
func (t *Task) Question(n int) string {
	switch n {
	case 1:
		return t.Question1
	case 2:
		return t.Question2
	case 3:
		return t.Question3
	}
	return ""
}

// FinalMessage is one of the closing messages sent after the course ends.
type FinalMessage struct {
	ID     uint   `db:"id"`
	Number int    `db:"number"`
	Body   string `db:"body"`
}

// Submission records a published post link for one participant and day.
type Submission struct {
	ID         uint      `db:"id"`
	CreatedAt  time.Time `db:"created_at"`
	TelegramID int64     `db:"telegram_id"`
	Day        int       `db:"day"`
	Link       string    `db:"link"`
}
