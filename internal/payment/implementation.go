// internal/payment/implementation.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/circulation"
	"libraryrental/internal/clients"
)

var (
	ErrPaymentNotFound = apperr.NotFound("payment not found")
	ErrNothingToCharge = apperr.Validation("borrowing has no chargeable duration")
	ErrAmountTooLarge  = apperr.Validation("money_to_pay exceeds the largest payable amount")
	errBorrowingNoBook = errors.New("borrowing has no book loaded")
)

type service struct {
	repo       Repository
	borrowings Borrowings
	checkout   Checkout
	opts       Options
	now        func() time.Time
	tracer     trace.Tracer
}

// NewService creates a new payment service instance.
func NewService(repo Repository, borrowings Borrowings, checkout Checkout, opts Options) Service {
	return &service{
		repo:       repo,
		borrowings: borrowings,
		checkout:   checkout,
		opts:       opts,
		now:        time.Now,
		tracer:     otel.Tracer("libraryrental/payment"),
	}
}

// CreateForBorrowing opens the checkout session for a new borrowing.
func (s *service) CreateForBorrowing(ctx context.Context, b *circulation.Borrowing) error {
	_, err := s.open(ctx, b)
	return err
}

// open asks the provider for a session and stores the pending payment. Nothing
// is stored when the provider fails.
func (s *service) open(ctx context.Context, b *circulation.Borrowing) (*Payment, error) {
	ctx, span := s.tracer.Start(ctx, "payment.open_session",
		trace.WithAttributes(attribute.String("borrowing.id", b.ID.String())),
	)
	defer span.End()

	if b.Book == nil {
		return nil, errBorrowingNoBook
	}
	days := b.DurationDays()
	if days <= 0 {
		return nil, ErrNothingToCharge
	}
	money, minor := Amount(days, b.Book.DailyFee)
	if !money.LessThan(maxMoneyToPay) {
		return nil, ErrAmountTooLarge
	}
	span.SetAttributes(attribute.Int64("payment.amount_minor", minor))

	p := &Payment{
		ID:          uuid.New(),
		Status:      StatusPending,
		Type:        TypePayment,
		BorrowingID: b.ID,
		MoneyToPay:  money,
		CreatedAt:   s.now().UTC(),
	}

	session, err := s.checkout.CreateCheckoutSession(ctx, clients.CheckoutRequest{
		ProductName:    b.Book.Title,
		AmountMinor:    minor,
		Currency:       s.opts.Currency,
		SuccessURL:     s.opts.SuccessURL,
		CancelURL:      s.opts.CancelURL,
		Metadata:       map[string]string{"borrowing_id": b.ID.String(), "payment_id": p.ID.String()},
		IdempotencyKey: p.ID.String(),
	})
	if err != nil {
		span.RecordError(err)
		return nil, apperr.Provider("payment provider request failed", err)
	}
	p.SessionID = &session.ID
	p.SessionURL = &session.URL

	if err := s.repo.Insert(ctx, p); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}
	return p, nil
}

// CreateSessionForBorrowing opens another checkout session for a borrowing
// the actor owns. Staff may open one for any borrowing.
func (s *service) CreateSessionForBorrowing(ctx context.Context, actor auth.Actor, borrowingID uuid.UUID) (*Payment, error) {
	if borrowingID == uuid.Nil {
		return nil, apperr.Validation("borrowing: this field is required")
	}
	b, err := s.borrowings.Get(ctx, borrowingID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.Validation("borrowing: object does not exist")
		}
		return nil, fmt.Errorf("failed to load borrowing: %w", err)
	}
	if !actor.IsStaff && b.UserID != actor.UserID {
		return nil, apperr.Validation("borrowing: object does not exist")
	}
	return s.open(ctx, b)
}

func scope(actor auth.Actor, filter ListFilter) ListFilter {
	if actor.IsStaff {
		filter.UserID = nil
		return filter
	}
	own := actor.UserID
	filter.UserID = &own
	return filter
}

// ListPayments returns staff every payment and everyone else the payments of
// their own borrowings.
func (s *service) ListPayments(ctx context.Context, actor auth.Actor, filter ListFilter) ([]Payment, int, error) {
	items, total, err := s.repo.List(ctx, scope(actor, filter))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return items, total, nil
}

// GetPayment returns a visible payment with its borrowing.
func (s *service) GetPayment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Detail, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b, err := s.borrowings.Get(ctx, p.BorrowingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load borrowing of payment %s: %w", id, err)
	}
	if !actor.IsStaff && b.UserID != actor.UserID {
		return nil, ErrPaymentNotFound
	}
	return &Detail{Payment: *p, Borrowing: b}, nil
}
