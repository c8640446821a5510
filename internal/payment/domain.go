// internal/payment/domain.go
package payment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"libraryrental/internal/circulation"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
)

type Type string

const (
	TypePayment Type = "PAYMENT"
	TypeFine    Type = "FINE"
)

// Payment is a checkout session opened for a borrowing. Session fields are
// nil until the provider has answered.
type Payment struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Status      Status          `json:"status" db:"status"`
	Type        Type            `json:"type" db:"type"`
	BorrowingID uuid.UUID       `json:"borrowing" db:"borrowing_id"`
	SessionURL  *string         `json:"session_url" db:"session_url"`
	SessionID   *string         `json:"session_id" db:"session_id"`
	MoneyToPay  decimal.Decimal `json:"money_to_pay" db:"money_to_pay"`
	CreatedAt   time.Time       `json:"-" db:"created_at"`
}

// Detail is a payment with its borrowing expanded.
type Detail struct {
	Payment
	Borrowing *circulation.Borrowing `json:"borrowing"`
}

// ListFilter narrows payments to one borrower when UserID is set.
type ListFilter struct {
	UserID *uuid.UUID
	Limit  int
	Offset int
}

// SessionInput is the body of an ad-hoc checkout request.
type SessionInput struct {
	BorrowingID uuid.UUID `json:"borrowing"`
}

var hundred = decimal.NewFromInt(100)

// maxMoneyToPay is the first amount that no longer fits NUMERIC(10,2).
var maxMoneyToPay = decimal.New(1, 8)

// Amount returns what a borrowing of days days costs at fee per day, rounded
// half up to cents, and the same amount in minor units.
func Amount(days int, fee decimal.Decimal) (decimal.Decimal, int64) {
	money := decimal.NewFromInt(int64(days)).Mul(fee).Round(2)
	return money, money.Mul(hundred).IntPart()
}
