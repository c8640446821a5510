// Package server assembles the HTTP surface and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/catalog"
	"libraryrental/internal/circulation"
	"libraryrental/internal/httpx"
	"libraryrental/internal/logging"
	"libraryrental/internal/membership"
	"libraryrental/internal/notify"
	"libraryrental/internal/payment"
	"libraryrental/internal/ratelimit"
)

// Handlers are the mounted resources. A nil handler leaves its prefix
// unmounted.
type Handlers struct {
	Auth        *auth.Middleware
	Books       *catalog.Handler
	Borrowings  *circulation.Handler
	Payments    *payment.Handler
	Users       *membership.Handler
	Telegram    *notify.Handler
	HealthCheck func(ctx context.Context) error
}

func NewRouter(h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(ratelimit.ClientKey)
	r.Use(logging.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, apperr.KindNotFound, "not found")
	})
	r.MethodNotAllowed(httpx.MethodNotAllowed)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if h.HealthCheck != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := h.HealthCheck(ctx); err != nil {
				slog.Warn("health check failed", "err", err)
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if h.Books != nil {
		r.Mount("/books", h.Books.Routes(h.Auth))
	}
	if h.Borrowings != nil {
		r.Mount("/borrowings", h.Borrowings.Routes(h.Auth))
	}
	if h.Payments != nil {
		r.Mount("/payments", h.Payments.Routes(h.Auth))
	}
	if h.Users != nil {
		r.Mount("/users", h.Users.Routes(h.Auth))
	}
	if h.Telegram != nil {
		r.Mount("/telegram", h.Telegram.Routes(h.Auth))
	}
	return r
}

// Run serves handler on addr until ctx is cancelled, then drains in-flight
// requests for up to grace.
func Run(ctx context.Context, addr string, handler http.Handler, grace time.Duration) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}
