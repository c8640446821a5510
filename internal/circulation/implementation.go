// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/catalog"
	"libraryrental/internal/dates"
	"libraryrental/internal/notify"
	"libraryrental/pkg/eventstore"
)

var (
	ErrReturnBeforeBorrow = apperr.Validation("borrow date must be before return date")
	ErrBorrowingTooLong   = apperr.Validation(fmt.Sprintf("expected_return_date: a borrowing may last at most %d days", MaxBorrowingDays))
	ErrNoInventory        = apperr.Validation("insufficient inventory, inventory must be greater than 0")
	ErrAlreadyReturned    = apperr.Validation("already returned")
	ErrNotOwner           = apperr.Permission("only the borrower can return this book")
	ErrBorrowingNotFound  = apperr.NotFound("borrowing not found")
	ErrUnknownBook        = apperr.Validation("book: object does not exist")
)

// service implements the Service interface.
type service struct {
	repo     Repository
	notifier Notifier
	links    ChatLinks
	payments PaymentSessions
	clock    dates.Clock

	tracer   trace.Tracer
	created  metric.Int64Counter
	returned metric.Int64Counter
	failures metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(repo Repository, notifier Notifier, links ChatLinks, payments PaymentSessions, clock dates.Clock) Service {
	meter := otel.Meter("libraryrental/circulation")
	created, _ := meter.Int64Counter("borrowings_created_total",
		metric.WithDescription("Borrowings opened"))
	returned, _ := meter.Int64Counter("borrowings_returned_total",
		metric.WithDescription("Borrowings closed"))
	failures, _ := meter.Int64Counter("borrowing_side_effect_failures_total",
		metric.WithDescription("Post-commit notification or payment failures"))
	return &service{
		repo:     repo,
		notifier: notifier,
		links:    links,
		payments: payments,
		clock:    clock,
		tracer:   otel.Tracer("libraryrental/circulation"),
		created:  created,
		returned: returned,
		failures: failures,
	}
}

// CreateBorrowing opens a borrowing for the actor. The inventory decrement,
// the borrowing row and its event commit as one unit; notifications and the
// payment session run afterwards. When any of those fail the committed
// borrowing is still returned together with a provider error.
func (s *service) CreateBorrowing(ctx context.Context, actor auth.Actor, in CreateInput) (*Borrowing, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_borrowing",
		trace.WithAttributes(
			attribute.String("user.id", actor.UserID.String()),
			attribute.String("book.id", in.BookID.String()),
		),
	)
	defer span.End()

	if in.BookID == uuid.Nil {
		return nil, apperr.Validation("book: this field is required")
	}
	if in.ExpectedReturnDate.IsZero() {
		return nil, apperr.Validation("expected_return_date: this field is required")
	}
	today := s.clock.Today()
	if !in.ExpectedReturnDate.After(today) {
		return nil, ErrReturnBeforeBorrow
	}
	if today.DaysUntil(in.ExpectedReturnDate) > MaxBorrowingDays {
		return nil, ErrBorrowingTooLong
	}

	borrowing := &Borrowing{
		ID:                 uuid.New(),
		BorrowDate:         today,
		ExpectedReturnDate: in.ExpectedReturnDate,
		BookID:             in.BookID,
		UserID:             actor.UserID,
		Version:            1,
		CreatedAt:          time.Now().UTC(),
	}

	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		book, err := tx.LockBook(ctx, in.BookID)
		if err != nil {
			if errors.Is(err, catalog.ErrBookNotFound) {
				return ErrUnknownBook
			}
			return err
		}
		if book.Inventory <= 0 {
			return ErrNoInventory
		}
		book.Inventory--
		if err := tx.SetInventory(ctx, book.ID, book.Inventory); err != nil {
			return err
		}
		if err := tx.InsertBorrowing(ctx, borrowing); err != nil {
			return err
		}
		event, err := eventstore.NewEvent(EventBorrowingCreated, BorrowingCreated{
			BorrowingID:        borrowing.ID,
			UserID:             borrowing.UserID,
			BookID:             borrowing.BookID,
			BorrowDate:         borrowing.BorrowDate,
			ExpectedReturnDate: borrowing.ExpectedReturnDate,
			InventoryAfter:     book.Inventory,
		}, map[string]any{"actor": actor.UserID.String()})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, borrowing.ID, 0, event); err != nil {
			return err
		}
		borrowing.Book = book
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create borrowing: %w", err)
	}
	s.created.Add(ctx, 1)

	if err := s.afterCreate(ctx, actor, borrowing); err != nil {
		span.RecordError(err)
		s.failures.Add(ctx, 1)
		slog.Warn("borrowing created but follow-up failed",
			"borrowing_id", borrowing.ID, "err", err)
		return borrowing, apperr.Provider("borrowing created but a follow-up action failed", err)
	}
	return borrowing, nil
}

// afterCreate attempts every follow-up and joins the failures.
func (s *service) afterCreate(ctx context.Context, actor auth.Actor, b *Borrowing) error {
	var errs []error

	if err := s.notifier.NotifyChannel(ctx, notify.StockMessage(b.Book.Title, b.Book.Inventory)); err != nil {
		errs = append(errs, fmt.Errorf("stock notification: %w", err))
	}

	chatID, linked, err := s.links.ChatIDForUser(ctx, actor.UserID)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("look up chat link: %w", err))
	case linked:
		if err := s.notifier.NotifyUser(ctx, chatID, notify.DueDateReminder(b.Book.Title, b.ExpectedReturnDate)); err != nil {
			errs = append(errs, fmt.Errorf("due date reminder: %w", err))
		}
	}

	if err := s.payments.CreateForBorrowing(ctx, b); err != nil {
		errs = append(errs, fmt.Errorf("payment session: %w", err))
	}
	return errors.Join(errs...)
}

// ReturnBorrowing closes a borrowing owned by the actor and puts the copy
// back on the shelf.
func (s *service) ReturnBorrowing(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Borrowing, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_borrowing",
		trace.WithAttributes(
			attribute.String("user.id", actor.UserID.String()),
			attribute.String("borrowing.id", id.String()),
		),
	)
	defer span.End()

	today := s.clock.Today()
	var result *Borrowing
	err := s.repo.RunInTx(ctx, func(tx Tx) error {
		b, err := tx.LockBorrowing(ctx, id)
		if err != nil {
			return err
		}
		if b.UserID != actor.UserID {
			return ErrNotOwner
		}
		if !b.IsOpen() {
			return ErrAlreadyReturned
		}
		if today.Before(b.BorrowDate) {
			return apperr.Validation("return date cannot precede borrow date")
		}

		book, err := tx.LockBook(ctx, b.BookID)
		if err != nil {
			return err
		}
		book.Inventory++
		if err := tx.SetInventory(ctx, book.ID, book.Inventory); err != nil {
			return err
		}
		if err := tx.MarkReturned(ctx, b.ID, today, b.Version); err != nil {
			return err
		}
		event, err := eventstore.NewEvent(EventBorrowingReturned, BorrowingReturned{
			BorrowingID:      b.ID,
			UserID:           b.UserID,
			BookID:           b.BookID,
			ActualReturnDate: today,
			InventoryAfter:   book.Inventory,
		}, map[string]any{"actor": actor.UserID.String()})
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, b.ID, b.Version, event); err != nil {
			return err
		}

		b.ActualReturnDate = today
		b.Version++
		b.Book = book
		result = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("return borrowing: %w", err)
	}
	s.returned.Add(ctx, 1)
	return result, nil
}

// scope applies the visibility rule: staff see everyone (optionally one
// user), everyone else only themselves.
func scope(actor auth.Actor, filter ListFilter) ListFilter {
	if !actor.IsStaff {
		own := actor.UserID
		filter.UserID = &own
	}
	return filter
}

func visible(actor auth.Actor, b *Borrowing) bool {
	return actor.IsStaff || b.UserID == actor.UserID
}

// ListBorrowings returns one page of the borrowings visible to the actor.
func (s *service) ListBorrowings(ctx context.Context, actor auth.Actor, filter ListFilter) ([]Borrowing, int, error) {
	items, total, err := s.repo.List(ctx, scope(actor, filter))
	if err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}
	return items, total, nil
}

// GetBorrowing returns a borrowing visible to the actor. Borrowings of other
// users are reported as missing.
func (s *service) GetBorrowing(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Borrowing, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visible(actor, b) {
		return nil, ErrBorrowingNotFound
	}
	return b, nil
}

// BorrowingHistory returns the lifecycle events of a visible borrowing.
func (s *service) BorrowingHistory(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]eventstore.Event, error) {
	if _, err := s.GetBorrowing(ctx, actor, id); err != nil {
		return nil, err
	}
	events, err := s.repo.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load borrowing history: %w", err)
	}
	return events, nil
}
