// cmd/overdue/main.go
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"libraryrental/internal/circulation"
	"libraryrental/internal/config"
	"libraryrental/internal/database"
	"libraryrental/internal/dates"
	"libraryrental/internal/logging"
	"libraryrental/internal/notify"
	"libraryrental/internal/overdue"
	"libraryrental/internal/telemetry"
	"libraryrental/pkg/eventstore"
)

// overdue runs one sweep and exits. It is meant to be triggered by cron or a
// Kubernetes CronJob.
func main() {
	configPath := flag.String("config", config.ConfigPath, "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("overdue sweep failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, "libraryrental-overdue", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	bot := notify.NewBot(notify.BotConfig{
		Token:     cfg.TelegramBotToken,
		Endpoint:  cfg.TelegramAPIEndpoint,
		ChannelID: cfg.TelegramChatID,
		Timeout:   cfg.TelegramSendTimeoutDuration(),
	})
	repo := circulation.NewPostgresRepository(db, eventstore.NewEventStore(db))
	sweeper := overdue.NewSweeper(repo, bot, notify.NewLinks(db), dates.Clock(time.Now))

	report, err := sweeper.Run(ctx)
	if err != nil {
		return err
	}
	slog.Info("overdue sweep done",
		"overdue", report.Overdue, "notified", report.Notified, "failed", report.Failed)
	return nil
}
