package tasks

import (
	"context"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks initializes and returns a map of all registered scheduled
// tasks. The keys match the scheduler section of the configuration.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	tasks["broadcast"] = newBroadcastTask(deps)
	tasks["reminder_1"] = newReminderTask(deps, 1)
	tasks["reminder_2"] = newReminderTask(deps, 2)
	tasks["reminder_3"] = newReminderTask(deps, 3)
	tasks["completion_check"] = newCompletionCheckTask(deps)
	tasks["advance_day"] = newAdvanceDayTask(deps)
	tasks["final_messages"] = newFinalMessagesTask(deps)
	tasks["daily_summary"] = newDailySummaryTask(deps)

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
