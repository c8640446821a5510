package circulation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryrental/internal/auth"
	"libraryrental/internal/database/databasetest"
	"libraryrental/pkg/eventstore"
)

func seedBook(t *testing.T, db *sqlx.DB, inventory int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO books (id, title, author, cover, inventory, daily_fee)
		VALUES ($1, 'The Great Gatsby', 'F. Scott Fitzgerald', 'SOFT', $2, 0.50)`, id, inventory)
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, db *sqlx.DB) auth.Actor {
	t.Helper()
	actor := auth.Actor{UserID: uuid.New(), Email: uuid.NewString() + "@example.com"}
	_, err := db.Exec(`INSERT INTO users (id, email, password_hash, salt) VALUES ($1, $2, 'h', 's')`,
		actor.UserID, actor.Email)
	require.NoError(t, err)
	return actor
}

func inventoryOf(t *testing.T, db *sqlx.DB, bookID uuid.UUID) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT inventory FROM books WHERE id = $1`, bookID))
	return n
}

func newPostgresService(db *sqlx.DB) Service {
	repo := NewPostgresRepository(db, eventstore.NewEventStore(db))
	return NewService(repo, &recordingNotifier{}, staticLinks{}, &recordingPayments{}, fixedClock(today))
}

func TestPostgresBorrowAndReturn(t *testing.T) {
	db := databasetest.Open(t)
	svc := newPostgresService(db)
	ctx := context.Background()

	bookID := seedBook(t, db, 5)
	reader := seedUser(t, db)

	b, err := svc.CreateBorrowing(ctx, reader, CreateInput{BookID: bookID, ExpectedReturnDate: today.AddDays(7)})
	require.NoError(t, err)
	assert.Equal(t, 4, inventoryOf(t, db, bookID))

	got, err := svc.GetBorrowing(ctx, reader, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Book)
	assert.Equal(t, "The Great Gatsby", got.Book.Title)
	assert.True(t, got.ExpectedReturnDate.Equal(today.AddDays(7)))

	returned, err := svc.ReturnBorrowing(ctx, reader, b.ID)
	require.NoError(t, err)
	assert.False(t, returned.IsOpen())
	assert.Equal(t, 5, inventoryOf(t, db, bookID))

	_, err = svc.ReturnBorrowing(ctx, reader, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyReturned)

	history, err := svc.BorrowingHistory(ctx, reader, b.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, EventBorrowingCreated, history[0].EventType)
	assert.Equal(t, EventBorrowingReturned, history[1].EventType)

	active := true
	list, total, err := svc.ListBorrowings(ctx, reader, ListFilter{Active: &active, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestPostgresConcurrentBorrowingsPreventDoubleBooking(t *testing.T) {
	db := databasetest.Open(t)
	svc := newPostgresService(db)
	ctx := context.Background()

	bookID := seedBook(t, db, 1)
	readers := make([]auth.Actor, 10)
	for i := range readers {
		readers[i] = seedUser(t, db)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for _, reader := range readers {
		wg.Add(1)
		go func(actor auth.Actor) {
			defer wg.Done()
			_, err := svc.CreateBorrowing(ctx, actor, CreateInput{BookID: bookID, ExpectedReturnDate: today.AddDays(3)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(reader)
	}
	wg.Wait()

	assert.Equal(t, 1, successes, "only one concurrent borrowing should succeed")
	for _, err := range failures {
		assert.ErrorIs(t, err, ErrNoInventory, fmt.Sprintf("unexpected failure: %v", err))
	}
	assert.Equal(t, 0, inventoryOf(t, db, bookID))
}

func TestPostgresListOverdue(t *testing.T) {
	db := databasetest.Open(t)
	repo := NewPostgresRepository(db, eventstore.NewEventStore(db))
	svc := NewService(repo, &recordingNotifier{}, staticLinks{}, &recordingPayments{}, fixedClock(today.AddDays(-10)))
	ctx := context.Background()

	bookID := seedBook(t, db, 2)
	reader := seedUser(t, db)
	b, err := svc.CreateBorrowing(ctx, reader, CreateInput{BookID: bookID, ExpectedReturnDate: today.AddDays(-5)})
	require.NoError(t, err)

	overdue, err := repo.ListOverdue(ctx, today)
	require.NoError(t, err)
	var found *Overdue
	for i := range overdue {
		if overdue[i].ID == b.ID {
			found = &overdue[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, reader.Email, found.UserEmail)
	require.NotNil(t, found.Book)
	assert.Equal(t, "F. Scott Fitzgerald", found.Book.Author)
}
