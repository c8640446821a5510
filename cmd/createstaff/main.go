// cmd/createstaff/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/time/rate"

	"libraryrental/internal/auth"
	"libraryrental/internal/config"
	"libraryrental/internal/database"
	"libraryrental/internal/logging"
	"libraryrental/internal/membership"
	"libraryrental/internal/ratelimit"
	"libraryrental/internal/validation"
	"libraryrental/pkg/eventstore"
)

// createstaff registers a staff account, or with -promote grants staff rights
// to an existing one. The password is read from STAFF_PASSWORD.
func main() {
	configPath := flag.String("config", config.ConfigPath, "path to the YAML config file")
	email := flag.String("email", "", "account email")
	promote := flag.Bool("promote", false, "grant staff rights to an existing account")
	revoke := flag.Bool("revoke", false, "remove staff rights from an existing account")
	flag.Parse()

	if err := run(*configPath, *email, *promote, *revoke); err != nil {
		fmt.Fprintln(os.Stderr, "createstaff:", err)
		os.Exit(1)
	}
}

func run(configPath, email string, promote, revoke bool) error {
	if email == "" {
		return fmt.Errorf("-email is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.InitLogger(cfg.LogLevel)

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	svc := membership.NewService(
		membership.NewPostgresRepository(db, eventstore.NewEventStore(db)),
		auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTLDuration()),
		validation.New(),
		ratelimit.New(rate.Inf, 0),
	)

	var user *membership.User
	switch {
	case promote || revoke:
		user, err = svc.SetStaff(ctx, email, promote)
	default:
		user, err = svc.CreateStaff(ctx, membership.RegisterInput{
			Email:    email,
			Password: os.Getenv("STAFF_PASSWORD"),
		})
	}
	if err != nil {
		return err
	}
	slog.Info("staff account updated", "user_id", user.ID, "email", user.Email, "is_staff", user.IsStaff)
	return nil
}
