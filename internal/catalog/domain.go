// internal/catalog/domain.go
package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cover is the binding of a book.
type Cover string

const (
	CoverHard Cover = "HARD"
	CoverSoft Cover = "SOFT"
)

// Book is a title in the catalog together with the number of copies on the
// shelf.
type Book struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Title     string          `json:"title" db:"title"`
	Author    string          `json:"author" db:"author"`
	Cover     Cover           `json:"cover" db:"cover"`
	Inventory int             `json:"inventory" db:"inventory"`
	DailyFee  decimal.Decimal `json:"daily_fee" db:"daily_fee"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// BookInput is the full set of writable fields, used by create and replace.
type BookInput struct {
	Title     string          `json:"title" validate:"required,max=255"`
	Author    string          `json:"author" validate:"required,max=255"`
	Cover     Cover           `json:"cover" validate:"required,oneof=HARD SOFT"`
	Inventory int             `json:"inventory" validate:"gte=0"`
	DailyFee  decimal.Decimal `json:"daily_fee" validate:"gt=0,lt=100000000"`
}

// BookPatch carries the fields of a partial update; nil means unchanged.
type BookPatch struct {
	Title     *string          `json:"title"`
	Author    *string          `json:"author"`
	Cover     *Cover           `json:"cover"`
	Inventory *int             `json:"inventory"`
	DailyFee  *decimal.Decimal `json:"daily_fee"`
}

func (p BookPatch) applyTo(b Book) BookInput {
	in := BookInput{
		Title:     b.Title,
		Author:    b.Author,
		Cover:     b.Cover,
		Inventory: b.Inventory,
		DailyFee:  b.DailyFee,
	}
	if p.Title != nil {
		in.Title = *p.Title
	}
	if p.Author != nil {
		in.Author = *p.Author
	}
	if p.Cover != nil {
		in.Cover = *p.Cover
	}
	if p.Inventory != nil {
		in.Inventory = *p.Inventory
	}
	if p.DailyFee != nil {
		in.DailyFee = *p.DailyFee
	}
	return in
}

// Filter narrows ListBooks. Title and Author are case-insensitive substring
// matches.
type Filter struct {
	Title  string
	Author string
	Limit  int
	Offset int
}
