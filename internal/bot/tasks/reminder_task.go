package tasks

import (
	"context"
)

// newReminderTask nudges participants who have not submitted today's task.
// Reminders never change participant state.
func newReminderTask(deps TaskDeps, number int) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Course.SendReminder(ctx, number)
	}
}
