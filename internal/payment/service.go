// internal/payment/service.go
package payment

import (
	"context"

	"github.com/google/uuid"

	"libraryrental/internal/auth"
	"libraryrental/internal/circulation"
	"libraryrental/internal/clients"
)

// Service defines the interface for payment sessions.
type Service interface {
	CreateForBorrowing(ctx context.Context, b *circulation.Borrowing) error
	CreateSessionForBorrowing(ctx context.Context, actor auth.Actor, borrowingID uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, actor auth.Actor, filter ListFilter) ([]Payment, int, error)
	GetPayment(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Detail, error)
}

type Repository interface {
	Insert(ctx context.Context, p *Payment) error
	List(ctx context.Context, filter ListFilter) ([]Payment, int, error)
	Get(ctx context.Context, id uuid.UUID) (*Payment, error)
}

// Borrowings loads a borrowing with its book. circulation.Repository
// satisfies it.
type Borrowings interface {
	Get(ctx context.Context, id uuid.UUID) (*circulation.Borrowing, error)
}

// Checkout opens hosted checkout sessions with the payment provider.
type Checkout interface {
	CreateCheckoutSession(ctx context.Context, req clients.CheckoutRequest) (*clients.CheckoutSession, error)
}

// Options are the fixed parameters of every checkout session.
type Options struct {
	Currency   string
	SuccessURL string
	CancelURL  string
}
