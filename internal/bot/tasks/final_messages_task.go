package tasks

import (
	"context"
)

// newFinalMessagesTask delivers the closing message sequence to course
// finishers. Per-participant sent flags make re-firing a no-op.
func newFinalMessagesTask(deps TaskDeps) ScheduledTaskFunc {
	return func(ctx context.Context) error {
		return deps.Course.SendFinalMessages(ctx)
	}
}
