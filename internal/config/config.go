// Package config manages application configuration from environment variables,
// config files, and default values.
package config

import (
	"slices"
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g., BOT_TELEGRAM_TOKEN) or
// through config.yaml.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Course    CourseConfig    `mapstructure:"course"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds bot credentials and chat wiring.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// AdminIDs is the allow-list for administrative commands.
	AdminIDs []int64 `mapstructure:"admin_ids" validate:"required,min=1"`

	// CourseChatID is the group chat excluded participants are banned from.
	// Zero disables the ban step.
	CourseChatID int64 `mapstructure:"course_chat_id"`

	// MonitoringChatID receives operational reports. Zero disables reporting.
	MonitoringChatID int64 `mapstructure:"monitoring_chat_id"`

	// SendPause is the delay between messages in fan-out loops.
	SendPause time.Duration `mapstructure:"send_pause" validate:"min=0"`

	// BotInfo is populated at startup from GetMe, not from configuration.
	BotInfo *models.User `mapstructure:"-"`
}

// CourseConfig holds the course shape and post validation knobs.
type CourseConfig struct {
	// Days is the course length in days.
	Days int `mapstructure:"days" validate:"required,min=1"`

	Timezone string `mapstructure:"timezone" validate:"required"`

	// TaskImageDir holds optional per-day images named <day>.jpg.
	TaskImageDir string `mapstructure:"task_image_dir"`

	// CheckPostAge enables the post recency probe on submitted links.
	CheckPostAge bool `mapstructure:"check_post_age"`

	// MaxPostAge is the accepted age of a submitted post.
	MaxPostAge time.Duration `mapstructure:"max_post_age" validate:"min=0"`

	// PenaltyLimit is the number of penalties that excludes a participant.
	PenaltyLimit int `mapstructure:"penalty_limit" validate:"required,min=1"`
}

// GeneratorConfig wires the external text generation job queue.
type GeneratorConfig struct {
	// SubmitURL receives generation jobs via HTTP POST.
	SubmitURL string `mapstructure:"submit_url" validate:"required,url"`

	// ListenAddr is the local address of the callback webhook server.
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// Timeout bounds the wait for a generation callback.
	Timeout time.Duration `mapstructure:"timeout" validate:"required,min=1s"`
}

// GeminiConfig holds credentials for the transcription backend.
type GeminiConfig struct {
	APIKey            string `mapstructure:"api_key" validate:"required"`
	ModelName         string `mapstructure:"model_name" validate:"required"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"min=0"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"min=0"`
}

// SchedulerConfig holds per-task cron schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig is the schedule of one registered scheduled task.
type TaskConfig struct {
	Schedule string `mapstructure:"schedule"`
	Enabled  bool   `mapstructure:"enabled"`
}

// IsAdmin reports whether the user is on the admin allow-list.
func (c *Config) IsAdmin(userID int64) bool {
	return slices.Contains(c.Telegram.AdminIDs, userID)
}
