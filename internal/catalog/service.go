// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the catalog service.
type Service interface {
	CreateBook(ctx context.Context, in BookInput) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context, filter Filter) ([]Book, int, error)
	UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error)
	PatchBook(ctx context.Context, id uuid.UUID, patch BookPatch) (*Book, error)
	DeleteBook(ctx context.Context, id uuid.UUID) error
}

// Repository persists books.
type Repository interface {
	Insert(ctx context.Context, b *Book) error
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
	List(ctx context.Context, filter Filter) ([]Book, int, error)
	Update(ctx context.Context, b *Book) error
	Delete(ctx context.Context, id uuid.UUID) error
}
