// internal/membership/repository.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"libraryrental/internal/apperr"
	"libraryrental/internal/database"
	"libraryrental/pkg/eventstore"
)

const uniqueViolation = "23505"

type postgresRepository struct {
	db     *sqlx.DB
	events *eventstore.EventStore
}

// NewPostgresRepository stores users in the users table and their account
// events in the event store.
func NewPostgresRepository(db *sqlx.DB, events *eventstore.EventStore) Repository {
	return &postgresRepository{db: db, events: events}
}

func (r *postgresRepository) Create(ctx context.Context, u *User, cred Credential, event eventstore.Event) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, first_name, last_name, password_hash, salt, is_staff, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, u.ID, u.Email, u.FirstName, u.LastName, cred.PasswordHash, cred.Salt, u.IsStaff, u.CreatedAt, u.UpdatedAt)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
				return ErrEmailTaken
			}
			return fmt.Errorf("insert user: %w", err)
		}
		return r.events.InTx(tx).AppendEvents(ctx, u.ID, aggregateType, 0, []eventstore.Event{event})
	})
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u := &User{}
	err := r.db.GetContext(ctx, u, `
		SELECT id, email, first_name, last_name, is_staff, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (r *postgresRepository) GetByEmail(ctx context.Context, email string) (*User, *Credential, error) {
	var row struct {
		User
		PasswordHash string `db:"password_hash"`
		Salt         string `db:"salt"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT id, email, first_name, last_name, is_staff, created_at, updated_at, password_hash, salt
		FROM users
		WHERE email = $1
	`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, fmt.Errorf("get user by email: %w", err)
	}
	user := row.User
	return &user, &Credential{UserID: user.ID, PasswordHash: row.PasswordHash, Salt: row.Salt}, nil
}

// Update writes the profile fields and, when cred is non-nil, the password.
func (r *postgresRepository) Update(ctx context.Context, u *User, cred *Credential, event eventstore.Event) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE users SET first_name = $2, last_name = $3, is_staff = $4, updated_at = $5
			WHERE id = $1
		`, u.ID, u.FirstName, u.LastName, u.IsStaff, u.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrUserNotFound
		}
		if cred != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE users SET password_hash = $2, salt = $3 WHERE id = $1
			`, u.ID, cred.PasswordHash, cred.Salt); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
		}

		events := r.events.InTx(tx)
		version, err := events.GetCurrentVersion(ctx, u.ID)
		if err != nil {
			return err
		}
		err = events.AppendEvents(ctx, u.ID, aggregateType, version, []eventstore.Event{event})
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return apperr.Wrap(apperr.KindConflict, "user was modified concurrently", err)
		}
		return err
	})
}
