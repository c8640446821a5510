// Package overdue reminds borrowers and staff about books that were not
// returned on time.
package overdue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraryrental/internal/circulation"
	"libraryrental/internal/dates"
	"libraryrental/internal/notify"
)

// Source lists open borrowings due on or before a day.
type Source interface {
	ListOverdue(ctx context.Context, asOf dates.Date) ([]circulation.Overdue, error)
}

// Report summarizes one sweep. Notified and Failed count messages.
type Report struct {
	Overdue  int
	Notified int
	Failed   int
}

type Sweeper struct {
	source   Source
	notifier circulation.Notifier
	links    circulation.ChatLinks
	clock    dates.Clock

	tracer trace.Tracer
	runs   metric.Int64Counter
	failed metric.Int64Counter
}

func NewSweeper(source Source, notifier circulation.Notifier, links circulation.ChatLinks, clock dates.Clock) *Sweeper {
	meter := otel.Meter("libraryrental/overdue")
	runs, _ := meter.Int64Counter("overdue_sweeps_total",
		metric.WithDescription("Overdue sweeps started"))
	failed, _ := meter.Int64Counter("overdue_notification_failures_total",
		metric.WithDescription("Overdue messages that could not be delivered"))
	return &Sweeper{
		source:   source,
		notifier: notifier,
		links:    links,
		clock:    clock,
		tracer:   otel.Tracer("libraryrental/overdue"),
		runs:     runs,
		failed:   failed,
	}
}

// Run sends one shared notice per overdue borrowing and a private reminder to
// borrowers with a linked chat. Delivery failures are logged and counted; only
// a failure to list the borrowings is returned.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	today := s.clock.Today()
	ctx, span := s.tracer.Start(ctx, "overdue.sweep",
		trace.WithAttributes(attribute.String("sweep.date", today.String())))
	defer span.End()
	s.runs.Add(ctx, 1)

	items, err := s.source.ListOverdue(ctx, today)
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("failed to list overdue borrowings: %w", err)
	}

	report := Report{Overdue: len(items)}
	if len(items) == 0 {
		s.deliver(ctx, &report, "no_overdue", "", func() error {
			return s.notifier.NotifyChannel(ctx, notify.NoOverdueMessage)
		})
		return report, nil
	}

	for _, item := range items {
		s.remind(ctx, &report, item)
	}
	span.SetAttributes(
		attribute.Int("sweep.overdue", report.Overdue),
		attribute.Int("sweep.failed", report.Failed),
	)
	slog.Info("overdue sweep finished",
		"date", today.String(), "overdue", report.Overdue,
		"notified", report.Notified, "failed", report.Failed)
	return report, nil
}

func (s *Sweeper) remind(ctx context.Context, report *Report, item circulation.Overdue) {
	id := item.ID.String()
	title, author := "", ""
	if item.Book != nil {
		title, author = item.Book.Title, item.Book.Author
	}
	borrower := item.UserEmail
	if borrower == "" {
		borrower = item.UserID.String()
	}

	s.deliver(ctx, report, "overdue_notice", id, func() error {
		return s.notifier.NotifyChannel(ctx, notify.OverdueNotice(borrower, title, author))
	})

	chatID, linked, err := s.links.ChatIDForUser(ctx, item.UserID)
	if err != nil {
		report.Failed++
		s.failed.Add(ctx, 1)
		slog.Warn("overdue sweep: chat lookup failed", "borrowing_id", id, "err", err)
		return
	}
	if !linked {
		return
	}
	s.deliver(ctx, report, "overdue_reminder", id, func() error {
		return s.notifier.NotifyUser(ctx, chatID, notify.OverdueReminder(title, item.BorrowDate, item.ExpectedReturnDate))
	})
}

func (s *Sweeper) deliver(ctx context.Context, report *Report, kind, borrowingID string, send func() error) {
	if err := send(); err != nil {
		report.Failed++
		s.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
		slog.Warn("overdue sweep: message not delivered",
			"kind", kind, "borrowing_id", borrowingID, "err", err)
		return
	}
	report.Notified++
}

// RunEvery sweeps once per interval until ctx is cancelled. Errors are logged
// and the next tick tries again.
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Run(ctx); err != nil {
				slog.Error("overdue sweep failed", "err", err)
			}
		}
	}
}
