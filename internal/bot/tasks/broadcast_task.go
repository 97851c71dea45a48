package tasks

import (
	"context"
)

// newBroadcastTask delivers the current day's task to all enrolled
// participants. On the first run after a course start it also bumps the
// clock from day zero to day one.
func newBroadcastTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Course.BroadcastTask(ctx)
	}
}
