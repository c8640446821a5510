// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"libraryrental/internal/catalog"
	"libraryrental/internal/dates"
)

const aggregateType = "borrowing"

// MaxBorrowingDays is the longest a book may be borrowed for.
const MaxBorrowingDays = 365

// Borrowing is one user holding one book for a date range. A zero
// ActualReturnDate means the borrowing is still open.
type Borrowing struct {
	ID                 uuid.UUID  `json:"id"`
	BorrowDate         dates.Date `json:"borrow_date"`
	ExpectedReturnDate dates.Date `json:"expected_return_date"`
	ActualReturnDate   dates.Date `json:"actual_return_date"`
	BookID             uuid.UUID  `json:"-"`
	UserID             uuid.UUID  `json:"user"`
	Version            int        `json:"-"`
	CreatedAt          time.Time  `json:"-"`

	Book *catalog.Book `json:"book,omitempty"`
}

func (b Borrowing) IsOpen() bool { return b.ActualReturnDate.IsZero() }

// DurationDays is the number of days between borrowing and the expected return.
func (b Borrowing) DurationDays() int {
	return b.BorrowDate.DaysUntil(b.ExpectedReturnDate)
}

// CreateInput is the body of a borrowing request.
type CreateInput struct {
	BookID             uuid.UUID  `json:"book"`
	ExpectedReturnDate dates.Date `json:"expected_return_date"`
}

// CreatedView is the projection returned by CreateBorrowing.
type CreatedView struct {
	ID                 uuid.UUID  `json:"id"`
	ExpectedReturnDate dates.Date `json:"expected_return_date"`
	Book               uuid.UUID  `json:"book"`
}

func (b Borrowing) CreatedView() CreatedView {
	return CreatedView{ID: b.ID, ExpectedReturnDate: b.ExpectedReturnDate, Book: b.BookID}
}

// ListFilter selects borrowings. A nil UserID means every user and a nil
// Active means open and returned alike.
type ListFilter struct {
	UserID *uuid.UUID
	Active *bool
	Limit  int
	Offset int
}

// Overdue is an open borrowing past its expected return date, with what the
// notices need to name.
type Overdue struct {
	Borrowing
	UserEmail string
}

// BorrowingCreated is recorded when a borrowing is opened.
type BorrowingCreated struct {
	BorrowingID        uuid.UUID  `json:"borrowing_id"`
	UserID             uuid.UUID  `json:"user_id"`
	BookID             uuid.UUID  `json:"book_id"`
	BorrowDate         dates.Date `json:"borrow_date"`
	ExpectedReturnDate dates.Date `json:"expected_return_date"`
	InventoryAfter     int        `json:"inventory_after"`
}

// BorrowingReturned is recorded when a borrowing is closed.
type BorrowingReturned struct {
	BorrowingID      uuid.UUID  `json:"borrowing_id"`
	UserID           uuid.UUID  `json:"user_id"`
	BookID           uuid.UUID  `json:"book_id"`
	ActualReturnDate dates.Date `json:"actual_return_date"`
	InventoryAfter   int        `json:"inventory_after"`
}

const (
	EventBorrowingCreated  = "BorrowingCreated"
	EventBorrowingReturned = "BorrowingReturned"
)
