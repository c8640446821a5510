package payment

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"libraryrental/internal/circulation"
	"libraryrental/internal/clients"
)

type memoryRepository struct {
	mu         sync.Mutex
	payments   map[uuid.UUID]Payment
	borrowings map[uuid.UUID]circulation.Borrowing
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		payments:   map[uuid.UUID]Payment{},
		borrowings: map[uuid.UUID]circulation.Borrowing{},
	}
}

func (m *memoryRepository) addBorrowing(b circulation.Borrowing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.borrowings[b.ID] = b
}

func (m *memoryRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payments)
}

func (m *memoryRepository) Insert(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.ID] = *p
	return nil
}

func (m *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (m *memoryRepository) List(_ context.Context, filter ListFilter) ([]Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Payment
	for _, p := range m.payments {
		if filter.UserID != nil && m.borrowings[p.BorrowingID].UserID != *filter.UserID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	total := len(out)
	if filter.Offset >= len(out) {
		return []Payment{}, total, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, total, nil
}

// borrowingStore answers Borrowings from the same memory repository.
type borrowingStore struct{ repo *memoryRepository }

func (b borrowingStore) Get(_ context.Context, id uuid.UUID) (*circulation.Borrowing, error) {
	b.repo.mu.Lock()
	defer b.repo.mu.Unlock()
	br, ok := b.repo.borrowings[id]
	if !ok {
		return nil, circulation.ErrBorrowingNotFound
	}
	return &br, nil
}

type fakeCheckout struct {
	mu       sync.Mutex
	requests []clients.CheckoutRequest
	err      error
}

func (f *fakeCheckout) CreateCheckoutSession(_ context.Context, req clients.CheckoutRequest) (*clients.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	id := "cs_test_" + req.IdempotencyKey
	return &clients.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}
