// internal/catalog/implementation.go
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"libraryrental/internal/apperr"
	"libraryrental/internal/validation"
)

// service implements the Service interface.
type service struct {
	repo      Repository
	validator *validation.Validator
	now       func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(repo Repository, v *validation.Validator) Service {
	return &service{
		repo:      repo,
		validator: v,
		now:       time.Now,
	}
}

func (s *service) validate(in *BookInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	if err := s.validator.Validate(in); err != nil {
		return err
	}
	if !in.DailyFee.Equal(in.DailyFee.Round(2)) {
		return apperr.Validation("daily_fee: ensure that there are no more than 2 decimal places")
	}
	return nil
}

// CreateBook adds a new book to the catalog.
func (s *service) CreateBook(ctx context.Context, in BookInput) (*Book, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	book := &Book{
		ID:        uuid.New(),
		Title:     in.Title,
		Author:    in.Author,
		Cover:     in.Cover,
		Inventory: in.Inventory,
		DailyFee:  in.DailyFee,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return s.repo.Get(ctx, id)
}

// ListBooks returns one page of books and the total number of matches.
func (s *service) ListBooks(ctx context.Context, filter Filter) ([]Book, int, error) {
	filter.Title = strings.TrimSpace(filter.Title)
	filter.Author = strings.TrimSpace(filter.Author)
	books, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list books: %w", err)
	}
	return books, total, nil
}

// UpdateBook replaces every writable field of a book.
func (s *service) UpdateBook(ctx context.Context, id uuid.UUID, in BookInput) (*Book, error) {
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.save(ctx, book, in)
}

// PatchBook changes only the fields present in patch.
func (s *service) PatchBook(ctx context.Context, id uuid.UUID, patch BookPatch) (*Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in := patch.applyTo(*book)
	if err := s.validate(&in); err != nil {
		return nil, err
	}
	return s.save(ctx, book, in)
}

func (s *service) save(ctx context.Context, book *Book, in BookInput) (*Book, error) {
	book.Title = in.Title
	book.Author = in.Author
	book.Cover = in.Cover
	book.Inventory = in.Inventory
	book.DailyFee = in.DailyFee
	book.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book; its borrowings and payments go with it.
func (s *service) DeleteBook(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}
