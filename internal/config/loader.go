package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoadConfig loads and validates configuration from:
// 1. Default values
// 2. The config file at the given path (optional)
// 3. BOT_* environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow missing config file, env vars and defaults may be enough
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	v.SetDefault("database.path", "sprintbot.db")

	v.SetDefault("telegram.send_pause", "300ms")

	v.SetDefault("course.days", 14)
	v.SetDefault("course.timezone", "Europe/Moscow")
	v.SetDefault("course.check_post_age", true)
	v.SetDefault("course.max_post_age", "23h")
	v.SetDefault("course.penalty_limit", 3)

	v.SetDefault("generator.listen_addr", ":8088")
	v.SetDefault("generator.timeout", "3m")

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.max_retries", 3)
	v.SetDefault("gemini.retry_delay_seconds", 5)

	// Daily protocol: reminders lead up to the completion check, the day
	// advance runs right after the check, then the new day's broadcast.
	v.SetDefault("scheduler.tasks", map[string]any{
		"reminder_1":       map[string]any{"schedule": "50 8 * * *", "enabled": true},
		"reminder_2":       map[string]any{"schedule": "20 9 * * *", "enabled": true},
		"reminder_3":       map[string]any{"schedule": "35 9 * * *", "enabled": true},
		"completion_check": map[string]any{"schedule": "50 9 * * *", "enabled": true},
		"advance_day":      map[string]any{"schedule": "52 9 * * *", "enabled": true},
		"broadcast":        map[string]any{"schedule": "0 10 * * *", "enabled": true},
		"final_messages":   map[string]any{"schedule": "5 10 * * *", "enabled": true},
		"daily_summary":    map[string]any{"schedule": "59 23 * * *", "enabled": true},
	})
}
