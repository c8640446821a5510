// internal/catalog/repository.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraryrental/internal/apperr"
)

const booksTable = "books"

var (
	dialect     = goqu.Dialect("postgres")
	bookColumns = []any{"id", "title", "author", "cover", "inventory", "daily_fee", "created_at", "updated_at"}

	ErrBookNotFound = apperr.NotFound("book not found")
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository stores books in the books table.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Insert(ctx context.Context, b *Book) error {
	query := `
		INSERT INTO books (id, title, author, cover, inventory, daily_fee, created_at, updated_at)
		VALUES (:id, :title, :author, :cover, :inventory, :daily_fee, :created_at, :updated_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := r.db.GetContext(ctx, book, `
		SELECT id, title, author, cover, inventory, daily_fee, created_at, updated_at
		FROM books
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, fmt.Errorf("get book %s: %w", id, err)
	}
	return book, nil
}

// escapeLike makes user input match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *postgresRepository) List(ctx context.Context, filter Filter) ([]Book, int, error) {
	where := []goqu.Expression{}
	if filter.Title != "" {
		where = append(where, goqu.C("title").ILike("%"+escapeLike(filter.Title)+"%"))
	}
	if filter.Author != "" {
		where = append(where, goqu.C("author").ILike("%"+escapeLike(filter.Author)+"%"))
	}

	countSQL, countArgs, err := dialect.From(booksTable).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count books: %w", err)
	}

	ds := dialect.From(booksTable).Prepared(true).
		Select(bookColumns...).
		Where(where...).
		Order(goqu.C("title").Asc(), goqu.C("id").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	listSQL, listArgs, err := ds.ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	books := []Book{}
	if err := r.db.SelectContext(ctx, &books, listSQL, listArgs...); err != nil {
		return nil, 0, fmt.Errorf("list books: %w", err)
	}
	return books, total, nil
}

func (r *postgresRepository) Update(ctx context.Context, b *Book) error {
	query, args, err := dialect.Update(booksTable).Prepared(true).
		Set(goqu.Record{
			"title":      b.Title,
			"author":     b.Author,
			"cover":      string(b.Cover),
			"inventory":  b.Inventory,
			"daily_fee":  b.DailyFee,
			"updated_at": b.UpdatedAt,
		}).
		Where(goqu.C("id").Eq(b.ID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build update query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update book %s: %w", b.ID, err)
	}
	return expectOneRow(res)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete book %s: %w", id, err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}
