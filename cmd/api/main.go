// cmd/api/main.go
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"libraryrental/internal/auth"
	"libraryrental/internal/catalog"
	"libraryrental/internal/circulation"
	"libraryrental/internal/clients"
	"libraryrental/internal/config"
	"libraryrental/internal/database"
	"libraryrental/internal/dates"
	"libraryrental/internal/logging"
	"libraryrental/internal/membership"
	"libraryrental/internal/notify"
	"libraryrental/internal/overdue"
	"libraryrental/internal/payment"
	"libraryrental/internal/ratelimit"
	"libraryrental/internal/server"
	"libraryrental/internal/telemetry"
	"libraryrental/internal/validation"
	"libraryrental/pkg/eventstore"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to the YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("api stopped", "err", err)
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

	shutdownTelemetry, err := telemetry.Setup(ctx, "libraryrental-api", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	handlers, sweeper := wire(cfg, db)
	if every := cfg.OverdueSweepEvery(); every > 0 {
		slog.Info("in-process overdue sweep enabled", "interval", every.String())
		go sweeper.RunEvery(ctx, every)
	}

	return server.Run(ctx, ":"+cfg.Port, server.NewRouter(handlers), 10*time.Second)
}

func wire(cfg config.Config, db *sqlx.DB) (server.Handlers, *overdue.Sweeper) {
	events := eventstore.NewEventStore(db)
	validator := validation.New()
	clock := dates.Clock(time.Now)
	base := strings.TrimRight(cfg.PublicBaseURL, "/")

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTLDuration())
	users := membership.NewService(
		membership.NewPostgresRepository(db, events),
		tokens,
		validator,
		ratelimit.New(rate.Every(3*time.Second), 10),
	)
	mw := auth.NewMiddleware(tokens, users)

	if !cfg.TelegramEnabled() {
		slog.Warn("telegram bot token not set; notifications are disabled")
	}
	bot := notify.NewBot(notify.BotConfig{
		Token:     cfg.TelegramBotToken,
		Endpoint:  cfg.TelegramAPIEndpoint,
		ChannelID: cfg.TelegramChatID,
		Timeout:   cfg.TelegramSendTimeoutDuration(),
	})
	links := notify.NewLinks(db)

	if cfg.StripeSecretKey == "" {
		slog.Warn("stripe secret key not set; payment sessions will fail")
	}
	borrowingRepo := circulation.NewPostgresRepository(db, events)
	payments := payment.NewService(
		payment.NewPostgresRepository(db),
		borrowingRepo,
		clients.NewStripeClient(cfg.StripeAPIURL, cfg.StripeSecretKey, cfg.PaymentTimeoutDuration()),
		payment.Options{
			Currency:   cfg.PaymentCurrency,
			SuccessURL: cfg.PaymentSuccessURL,
			CancelURL:  cfg.PaymentCancelURL,
		},
	)
	borrowings := circulation.NewService(borrowingRepo, bot, links, payments, clock)
	books := catalog.NewService(catalog.NewPostgresRepository(db), validator)

	handlers := server.Handlers{
		Auth:       mw,
		Books:      catalog.NewHandler(books),
		Borrowings: circulation.NewHandler(borrowings),
		Payments:   payment.NewHandler(payments),
		Users:      membership.NewHandler(users),
		Telegram: notify.NewHandler(bot, links, notify.NewSigner(cfg.TelegramLinkSecret),
			base+"/users/register/", notify.Webhook{URL: cfg.TelegramWebhookURL, Secret: cfg.TelegramWebhookSecret}),
		HealthCheck: db.PingContext,
	}
	return handlers, overdue.NewSweeper(borrowingRepo, bot, links, clock)
}
