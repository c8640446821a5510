// internal/circulation/repository.go
package circulation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraryrental/internal/apperr"
	"libraryrental/internal/catalog"
	"libraryrental/internal/database"
	"libraryrental/internal/dates"
	"libraryrental/pkg/eventstore"
)

var (
	dialect = goqu.Dialect("postgres")

	ErrStaleBorrowing = apperr.Conflict("borrowing was modified concurrently")

	// Column order must match scanBorrowingWithBook.
	borrowingWithBookColumns = []any{
		"br.id", "br.borrow_date", "br.expected_return_date", "br.actual_return_date",
		"br.book_id", "br.user_id", "br.version", "br.created_at",
		"bk.id", "bk.title", "bk.author", "bk.cover", "bk.inventory", "bk.daily_fee",
		"bk.created_at", "bk.updated_at",
	}
)

type postgresRepository struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

// NewPostgresRepository stores borrowings in the borrowings table and their
// lifecycle events in the event store.
func NewPostgresRepository(db *sqlx.DB, events *eventstore.EventStore) Repository {
	return &postgresRepository{db: db, events: events}
}

func (r *postgresRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&postgresTx{tx: tx, events: r.events.InTx(tx)})
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBorrowingWithBook(row rowScanner) (Borrowing, error) {
	var (
		b    Borrowing
		book catalog.Book
	)
	err := row.Scan(
		&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate,
		&b.BookID, &b.UserID, &b.Version, &b.CreatedAt,
		&book.ID, &book.Title, &book.Author, &book.Cover, &book.Inventory, &book.DailyFee,
		&book.CreatedAt, &book.UpdatedAt,
	)
	if err != nil {
		return Borrowing{}, err
	}
	b.Book = &book
	return b, nil
}

func joinedBorrowings() *goqu.SelectDataset {
	return dialect.From(goqu.T("borrowings").As("br")).Prepared(true).
		Join(goqu.T("books").As("bk"), goqu.On(goqu.I("bk.id").Eq(goqu.I("br.book_id"))))
}

func listConditions(filter ListFilter) []exp.Expression {
	where := []exp.Expression{}
	if filter.UserID != nil {
		where = append(where, goqu.I("br.user_id").Eq(*filter.UserID))
	}
	if filter.Active != nil {
		if *filter.Active {
			where = append(where, goqu.I("br.actual_return_date").IsNull())
		} else {
			where = append(where, goqu.I("br.actual_return_date").IsNotNull())
		}
	}
	return where
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Borrowing, int, error) {
	where := listConditions(filter)

	countSQL, countArgs, err := dialect.From(goqu.T("borrowings").As("br")).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(where...).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count borrowings: %w", err)
	}

	ds := joinedBorrowings().
		Select(borrowingWithBookColumns...).
		Where(where...).
		Order(
			goqu.I("br.actual_return_date").Asc().NullsFirst(),
			goqu.I("br.expected_return_date").Desc(),
			goqu.I("br.id").Asc(),
		)
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	if filter.Offset > 0 {
		ds = ds.Offset(uint(filter.Offset))
	}
	query, args, err := ds.ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list borrowings: %w", err)
	}
	defer rows.Close()

	items := []Borrowing{}
	for rows.Next() {
		b, err := scanBorrowingWithBook(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan borrowing: %w", err)
		}
		items = append(items, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate borrowings: %w", err)
	}
	return items, total, nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Borrowing, error) {
	query, args, err := joinedBorrowings().
		Select(borrowingWithBookColumns...).
		Where(goqu.I("br.id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build get query: %w", err)
	}
	b, err := scanBorrowingWithBook(r.db.QueryRowxContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBorrowingNotFound
		}
		return nil, fmt.Errorf("get borrowing %s: %w", id, err)
	}
	return &b, nil
}

// ListOverdue returns open borrowings whose expected return date is on or
// before asOf.
func (r *postgresRepository) ListOverdue(ctx context.Context, asOf dates.Date) ([]Overdue, error) {
	columns := append(append([]any{}, borrowingWithBookColumns...), "u.email")
	query, args, err := joinedBorrowings().
		Join(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("br.user_id")))).
		Select(columns...).
		Where(
			goqu.I("br.actual_return_date").IsNull(),
			goqu.I("br.expected_return_date").Lte(asOf),
		).
		Order(goqu.I("br.expected_return_date").Asc(), goqu.I("br.id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build overdue query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list overdue borrowings: %w", err)
	}
	defer rows.Close()

	out := []Overdue{}
	for rows.Next() {
		var (
			o    Overdue
			book catalog.Book
		)
		b := &o.Borrowing
		if err := rows.Scan(
			&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate,
			&b.BookID, &b.UserID, &b.Version, &b.CreatedAt,
			&book.ID, &book.Title, &book.Author, &book.Cover, &book.Inventory, &book.DailyFee,
			&book.CreatedAt, &book.UpdatedAt,
			&o.UserEmail,
		); err != nil {
			return nil, fmt.Errorf("scan overdue borrowing: %w", err)
		}
		b.Book = &book
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overdue borrowings: %w", err)
	}
	return out, nil
}

func (r *postgresRepository) History(ctx context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	return r.events.LoadEvents(ctx, id, 0, 0)
}

type postgresTx struct {
	tx     *sqlx.Tx
	events *eventstore.EventStore
}

func (t *postgresTx) LockBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	book := &catalog.Book{}
	err := t.tx.GetContext(ctx, book, `
		SELECT id, title, author, cover, inventory, daily_fee, created_at, updated_at
		FROM books
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, catalog.ErrBookNotFound
		}
		return nil, fmt.Errorf("lock book %s: %w", id, err)
	}
	return book, nil
}

func (t *postgresTx) SetInventory(ctx context.Context, bookID uuid.UUID, inventory int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE books SET inventory = $1, updated_at = NOW() WHERE id = $2
	`, inventory, bookID)
	if err != nil {
		return fmt.Errorf("set inventory of book %s: %w", bookID, err)
	}
	return nil
}

func (t *postgresTx) InsertBorrowing(ctx context.Context, b *Borrowing) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO borrowings (id, borrow_date, expected_return_date, actual_return_date, book_id, user_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.BorrowDate, b.ExpectedReturnDate, b.ActualReturnDate, b.BookID, b.UserID, b.Version, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert borrowing: %w", err)
	}
	return nil
}

func (t *postgresTx) LockBorrowing(ctx context.Context, id uuid.UUID) (*Borrowing, error) {
	b := &Borrowing{}
	err := t.tx.QueryRowxContext(ctx, `
		SELECT id, borrow_date, expected_return_date, actual_return_date, book_id, user_id, version, created_at
		FROM borrowings
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate, &b.BookID, &b.UserID, &b.Version, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBorrowingNotFound
		}
		return nil, fmt.Errorf("lock borrowing %s: %w", id, err)
	}
	return b, nil
}

func (t *postgresTx) MarkReturned(ctx context.Context, id uuid.UUID, returned dates.Date, version int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE borrowings
		SET actual_return_date = $1, version = version + 1
		WHERE id = $2 AND version = $3 AND actual_return_date IS NULL
	`, returned, id, version)
	if err != nil {
		return fmt.Errorf("mark borrowing %s returned: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n != 1 {
		return ErrStaleBorrowing
	}
	return nil
}

func (t *postgresTx) AppendEvent(ctx context.Context, aggregateID uuid.UUID, expectedVersion int, event eventstore.Event) error {
	err := t.events.AppendEvents(ctx, aggregateID, aggregateType, expectedVersion, []eventstore.Event{event})
	if errors.Is(err, eventstore.ErrConcurrencyConflict) {
		return apperr.Wrap(apperr.KindConflict, "borrowing was modified concurrently", err)
	}
	return err
}
