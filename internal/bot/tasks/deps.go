// Package tasks implements the scheduled daily-protocol tasks.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"

	"github.com/avoronin/sprintbot/internal/config"
	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/monitor"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger  *slog.Logger
	Course  *course.Service
	Monitor *monitor.Monitor
	Config  *config.Config
}
