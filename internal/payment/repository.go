// internal/payment/repository.go
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	dialect        = goqu.Dialect("postgres")
	paymentColumns = []any{
		"p.id", "p.status", "p.type", "p.borrowing_id", "p.session_url", "p.session_id",
		"p.money_to_pay", "p.created_at",
	}
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository stores payments in the payments table.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Insert(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, status, type, borrowing_id, session_url, session_id, money_to_pay, created_at)
		VALUES (:id, :status, :type, :borrowing_id, :session_url, :session_id, :money_to_pay, :created_at)
	`
	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *postgresRepository) Get(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p := &Payment{}
	err := r.db.GetContext(ctx, p, `
		SELECT id, status, type, borrowing_id, session_url, session_id, money_to_pay, created_at
		FROM payments
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return p, nil
}

func (r *postgresRepository) List(ctx context.Context, filter ListFilter) ([]Payment, int, error) {
	base := dialect.From(goqu.T("payments").As("p")).Prepared(true).
		Join(goqu.T("borrowings").As("br"), goqu.On(goqu.I("br.id").Eq(goqu.I("p.borrowing_id"))))
	if filter.UserID != nil {
		base = base.Where(goqu.I("br.user_id").Eq(*filter.UserID))
	}

	countSQL, countArgs, err := base.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build payment count: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	query, args, err := base.Select(paymentColumns...).
		Order(goqu.I("p.created_at").Desc(), goqu.I("p.id").Asc()).
		Limit(uint(filter.Limit)).
		Offset(uint(filter.Offset)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build payment list: %w", err)
	}
	items := []Payment{}
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return items, total, nil
}
