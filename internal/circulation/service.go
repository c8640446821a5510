// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"libraryrental/internal/auth"
	"libraryrental/internal/catalog"
	"libraryrental/internal/dates"
	"libraryrental/pkg/eventstore"
)

// Service defines the interface for the borrowing lifecycle.
type Service interface {
	CreateBorrowing(ctx context.Context, actor auth.Actor, in CreateInput) (*Borrowing, error)
	ReturnBorrowing(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Borrowing, error)
	ListBorrowings(ctx context.Context, actor auth.Actor, filter ListFilter) ([]Borrowing, int, error)
	GetBorrowing(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Borrowing, error)
	BorrowingHistory(ctx context.Context, actor auth.Actor, id uuid.UUID) ([]eventstore.Event, error)
}

// Repository persists borrowings. Mutations go through RunInTx so that the
// inventory change, the borrowing row and its event commit together.
type Repository interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
	List(ctx context.Context, filter ListFilter) ([]Borrowing, int, error)
	Get(ctx context.Context, id uuid.UUID) (*Borrowing, error)
	ListOverdue(ctx context.Context, asOf dates.Date) ([]Overdue, error)
	History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error)
}

// Tx is the set of row-locked operations available inside a transaction.
type Tx interface {
	LockBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	SetInventory(ctx context.Context, bookID uuid.UUID, inventory int) error
	InsertBorrowing(ctx context.Context, b *Borrowing) error
	LockBorrowing(ctx context.Context, id uuid.UUID) (*Borrowing, error)
	MarkReturned(ctx context.Context, id uuid.UUID, returned dates.Date, version int) error
	AppendEvent(ctx context.Context, aggregateID uuid.UUID, expectedVersion int, event eventstore.Event) error
}

// Notifier delivers chat messages. NotifyUser targets a private chat.
type Notifier interface {
	NotifyChannel(ctx context.Context, text string) error
	NotifyUser(ctx context.Context, chatID int64, text string) error
}

// ChatLinks resolves a user's private chat, if one is linked.
type ChatLinks interface {
	ChatIDForUser(ctx context.Context, userID uuid.UUID) (chatID int64, found bool, err error)
}

// PaymentSessions opens a checkout session for a freshly created borrowing.
type PaymentSessions interface {
	CreateForBorrowing(ctx context.Context, b *Borrowing) error
}
