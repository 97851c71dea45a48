// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/avoronin/sprintbot/internal/bot"
	"github.com/avoronin/sprintbot/internal/bot/handlers"
	"github.com/avoronin/sprintbot/internal/bot/tasks"
	"github.com/avoronin/sprintbot/internal/config"
	"github.com/avoronin/sprintbot/internal/course"
	"github.com/avoronin/sprintbot/internal/database"
	"github.com/avoronin/sprintbot/internal/dialog"
	"github.com/avoronin/sprintbot/internal/gemini"
	"github.com/avoronin/sprintbot/internal/generator"
	"github.com/avoronin/sprintbot/internal/links"
	"github.com/avoronin/sprintbot/internal/logger"
	"github.com/avoronin/sprintbot/internal/monitor"
	"github.com/avoronin/sprintbot/internal/telegram"
	"github.com/avoronin/sprintbot/internal/webhook"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// generation clients, bot, scheduler, webhook), handles graceful shutdown,
// and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	store := database.NewStore(db, log)

	transcriber, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	genClient := generator.NewClient(cfg.Generator.SubmitURL, cfg.Generator.Timeout, log)
	dialogs := dialog.NewManager()

	hDeps := handlers.HandlerDeps{
		Logger:      log,
		Config:      cfg,
		Store:       store,
		Dialogs:     dialogs,
		Generator:   genClient,
		Transcriber: transcriber,
	}

	// The transport-dependent handler deps are filled in after the bot
	// instance exists, so the default handler dispatches through the
	// variable instead of capturing an early copy.
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			handlers.NewMessageHandler(hDeps)(ctx, b, update)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// Retrieve bot info and store it in the config for runtime use
	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	messenger := telegram.NewMessenger(tg, cfg.Telegram.SendPause, cfg.Telegram.MonitoringChatID, log)
	mon := monitor.New(messenger, cfg.Telegram.MonitoringChatID, log)
	courseSvc := course.NewService(store, messenger, mon, cfg, log)

	if err := courseSvc.EnsureClock(ctx); err != nil {
		log.Error("Failed to initialize course clock", "error", err)
		return 1
	}

	hDeps.Course = courseSvc
	hDeps.Transport = messenger
	hDeps.Monitor = mon
	hDeps.Links = links.NewValidator(messenger, cfg.Course.CheckPostAge, cfg.Course.MaxPostAge, log)

	cmdHandlers := handlers.RegisterAllCommands(hDeps)
	if err := telegram.RegisterHandlers(tg, log, cmdHandlers); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	loc, err := time.LoadLocation(cfg.Course.Timezone)
	if err != nil {
		log.Error("Failed to load course timezone", "timezone", cfg.Course.Timezone, "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger:  log,
		Course:  courseSvc,
		Monitor: mon,
		Config:  cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, loc, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	webhookSrv := webhook.NewServer(cfg.Generator.ListenAddr, genClient, log)
	app := bot.NewBot(log, cfg, db, store, tg, sched, webhookSrv)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	// Check if the error is significant (not just context cancellation)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
