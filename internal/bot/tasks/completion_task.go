package tasks

import (
	"context"
)

// newCompletionCheckTask runs the end-of-day decision for every enrolled
// participant. It is scheduled right before the day advance.
func newCompletionCheckTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Course.CheckCompletion(ctx)
	}
}

// newAdvanceDayTask moves the global course clock forward. Scheduled a
// couple of minutes after the completion check.
func newAdvanceDayTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Course.AdvanceDay(ctx)
	}
}
