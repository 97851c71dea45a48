// Package course implements the course engine: the global course clock,
// the daily protocol (broadcast, reminders, completion check, day advance,
// final messages), the penalty rules, and late-joiner admission.
package course

import (
	"context"
	"errors"
)

// ErrDeliveryPermanent marks a send failure that will never succeed again
// for this chat (bot blocked, account deleted, chat missing). Messenger
// implementations wrap it so fan-out loops can flag the participant.
var ErrDeliveryPermanent = errors.New("permanent delivery failure")

// Callback data for the task inline keyboard buttons.
const (
	CallbackWritePost  = "write_post"
	CallbackSubmitTask = "submit_task"
)

// Keyboard selects the inline keyboard attached to an outgoing message.
type Keyboard int

const (
	// KeyboardNone sends the message without buttons.
	KeyboardNone Keyboard = iota
	// KeyboardTask offers the write-post and submit-task buttons.
	KeyboardTask
	// KeyboardSubmit offers only the submit-task button.
	KeyboardSubmit
)

// SendOptions carries optional attachments for one outgoing message.
type SendOptions struct {
	// PhotoPath, when set and the file exists, sends the message as a
	// photo caption instead of plain text.
	PhotoPath string
	Keyboard  Keyboard
}

// Messenger is the transport used by the engine. Implemented by the
// Telegram adapter; replaced by a fake in tests.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error
	BanChatMember(ctx context.Context, chatID, userID int64) error
}

// Reporter receives operational events from the engine. Implementations
// must be best effort and never fail the calling operation.
type Reporter interface {
	BroadcastReport(ctx context.Context, day, sent, failed int)
	ReminderReport(ctx context.Context, number, day, sent, failed int)
	PenaltyReport(ctx context.Context, day int, tallies map[int][]int64)
	CompletionReport(ctx context.Context, finishers int)
	Event(ctx context.Context, text string)
}
