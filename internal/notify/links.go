// internal/notify/links.go
package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"libraryrental/internal/database"
)

// Links maps users to their private Telegram chats.
type Links struct {
	db *sqlx.DB
}

func NewLinks(db *sqlx.DB) *Links {
	return &Links{db: db}
}

// ChatIDForUser returns the chat linked to userID, if any.
func (l *Links) ChatIDForUser(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	var chatID int64
	err := l.db.GetContext(ctx, &chatID, `SELECT chat_id FROM telegram_links WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to look up telegram link: %w", err)
	}
	return chatID, true, nil
}

// Link attaches chatID to userID. A chat belongs to one user and a user to
// one chat, so an earlier link of either side is replaced.
func (l *Links) Link(ctx context.Context, chatID int64, userID uuid.UUID) error {
	return database.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE telegram_links SET user_id = NULL, updated_at = NOW()
			WHERE user_id = $1 AND chat_id <> $2
		`, userID, chatID); err != nil {
			return fmt.Errorf("failed to release previous telegram link: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO telegram_links (chat_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (chat_id) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = NOW()
		`, chatID, userID); err != nil {
			return fmt.Errorf("failed to link telegram chat: %w", err)
		}
		return nil
	})
}
