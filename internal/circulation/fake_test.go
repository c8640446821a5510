package circulation

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"

	"github.com/google/uuid"

	"libraryrental/internal/catalog"
	"libraryrental/internal/dates"
	"libraryrental/pkg/eventstore"
)

type memoryState struct {
	books      map[uuid.UUID]catalog.Book
	borrowings map[uuid.UUID]Borrowing
	events     map[uuid.UUID][]eventstore.Event
	emails     map[uuid.UUID]string
}

func (s memoryState) clone() memoryState {
	events := make(map[uuid.UUID][]eventstore.Event, len(s.events))
	for k, v := range s.events {
		events[k] = append([]eventstore.Event(nil), v...)
	}
	return memoryState{
		books:      maps.Clone(s.books),
		borrowings: maps.Clone(s.borrowings),
		events:     events,
		emails:     s.emails,
	}
}

// memoryRepository serializes transactions and applies a transaction's
// changes only when its function succeeds.
type memoryRepository struct {
	mu    sync.Mutex
	state memoryState
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{state: memoryState{
		books:      map[uuid.UUID]catalog.Book{},
		borrowings: map[uuid.UUID]Borrowing{},
		events:     map[uuid.UUID][]eventstore.Event{},
		emails:     map[uuid.UUID]string{},
	}}
}

func (m *memoryRepository) addBook(b catalog.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.books[b.ID] = b
}

func (m *memoryRepository) addBorrowing(b Borrowing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.borrowings[b.ID] = b
}

func (m *memoryRepository) book(id uuid.UUID) catalog.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[id]
}

func (m *memoryRepository) borrowingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.borrowings)
}

func (m *memoryRepository) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memoryTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memoryRepository) withBook(b Borrowing) Borrowing {
	book := m.state.books[b.BookID]
	b.Book = &book
	return b
}

func (m *memoryRepository) List(_ context.Context, f ListFilter) ([]Borrowing, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Borrowing{}
	for _, b := range m.state.borrowings {
		if f.UserID != nil && b.UserID != *f.UserID {
			continue
		}
		if f.Active != nil && b.IsOpen() != *f.Active {
			continue
		}
		out = append(out, m.withBook(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsOpen() != out[j].IsOpen() {
			return out[i].IsOpen()
		}
		if !out[i].ExpectedReturnDate.Equal(out[j].ExpectedReturnDate) {
			return out[i].ExpectedReturnDate.After(out[j].ExpectedReturnDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	total := len(out)
	if f.Offset >= len(out) {
		return []Borrowing{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Borrowing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.state.borrowings[id]
	if !ok {
		return nil, ErrBorrowingNotFound
	}
	b = m.withBook(b)
	return &b, nil
}

func (m *memoryRepository) ListOverdue(_ context.Context, asOf dates.Date) ([]Overdue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Overdue{}
	for _, b := range m.state.borrowings {
		if b.IsOpen() && !b.ExpectedReturnDate.After(asOf) {
			out = append(out, Overdue{Borrowing: m.withBook(b), UserEmail: m.state.emails[b.UserID]})
		}
	}
	return out, nil
}

func (m *memoryRepository) History(_ context.Context, id uuid.UUID) ([]eventstore.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]eventstore.Event{}, m.state.events[id]...), nil
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) LockBook(_ context.Context, id uuid.UUID) (*catalog.Book, error) {
	b, ok := t.state.books[id]
	if !ok {
		return nil, catalog.ErrBookNotFound
	}
	return &b, nil
}

func (t *memoryTx) SetInventory(_ context.Context, bookID uuid.UUID, inventory int) error {
	if inventory < 0 {
		return errors.New("inventory check constraint violated")
	}
	b := t.state.books[bookID]
	b.Inventory = inventory
	t.state.books[bookID] = b
	return nil
}

func (t *memoryTx) InsertBorrowing(_ context.Context, b *Borrowing) error {
	if !b.BorrowDate.Before(b.ExpectedReturnDate) {
		return errors.New("borrow date check constraint violated")
	}
	stored := *b
	stored.Book = nil
	t.state.borrowings[b.ID] = stored
	return nil
}

func (t *memoryTx) LockBorrowing(_ context.Context, id uuid.UUID) (*Borrowing, error) {
	b, ok := t.state.borrowings[id]
	if !ok {
		return nil, ErrBorrowingNotFound
	}
	return &b, nil
}

func (t *memoryTx) MarkReturned(_ context.Context, id uuid.UUID, returned dates.Date, version int) error {
	b := t.state.borrowings[id]
	if b.Version != version || !b.IsOpen() {
		return ErrStaleBorrowing
	}
	b.ActualReturnDate = returned
	b.Version++
	t.state.borrowings[id] = b
	return nil
}

func (t *memoryTx) AppendEvent(_ context.Context, aggregateID uuid.UUID, expectedVersion int, event eventstore.Event) error {
	if len(t.state.events[aggregateID]) != expectedVersion {
		return eventstore.ErrConcurrencyConflict
	}
	event.AggregateID = aggregateID
	event.AggregateType = aggregateType
	event.Version = expectedVersion + 1
	t.state.events[aggregateID] = append(t.state.events[aggregateID], event)
	return nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type recordingNotifier struct {
	mu         sync.Mutex
	channel    []string
	private    []sentMessage
	channelErr error
	privateErr error
}

func (n *recordingNotifier) NotifyChannel(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channel = append(n.channel, text)
	return n.channelErr
}

func (n *recordingNotifier) NotifyUser(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.private = append(n.private, sentMessage{chatID: chatID, text: text})
	return n.privateErr
}

type staticLinks map[uuid.UUID]int64

func (l staticLinks) ChatIDForUser(_ context.Context, userID uuid.UUID) (int64, bool, error) {
	id, ok := l[userID]
	return id, ok, nil
}

type recordingPayments struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (p *recordingPayments) CreateForBorrowing(_ context.Context, b *Borrowing) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, b.ID)
	return p.err
}
