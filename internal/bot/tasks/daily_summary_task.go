package tasks

import (
	"context"
)

// newDailySummaryTask posts the day's operational counters to the
// monitoring chat and resets them.
func newDailySummaryTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Monitor.SendDailySummary(ctx)
	}
}
