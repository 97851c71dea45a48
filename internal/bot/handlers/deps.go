// Package handlers contains Telegram bot command, message, and callback
// handlers, along with their registration logic and middleware.
package handlers

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/config"
	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
	"github.com/avoronin/sprintbot/internal/dialog"
	"github.com/avoronin/sprintbot/internal/gemini"
	"github.com/avoronin/sprintbot/internal/generator"
	"github.com/avoronin/sprintbot/internal/links"
	"github.com/avoronin/sprintbot/internal/monitor"
)

// Transport is the slice of the Telegram adapter the handlers need.
type Transport interface {
	course.Messenger

	// GetChatInfo resolves a public channel username.
	GetChatInfo(ctx context.Context, username string) (*models.ChatFullInfo, error)

	// DownloadFile fetches a Telegram file (voice answers) by file ID.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// HandlerDeps provides dependencies for Telegram handlers.
type HandlerDeps struct {
	Logger      *slog.Logger
	Config      *config.Config
	Store       database.Store
	Course      *course.Service
	Dialogs     *dialog.Manager
	Generator   *generator.Client
	Transcriber gemini.Client
	Transport   Transport
	Links       *links.Validator
	Monitor     *monitor.Monitor
}
