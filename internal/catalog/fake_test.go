package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type memoryRepository struct {
	mu    sync.Mutex
	books map[uuid.UUID]Book
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{books: map[uuid.UUID]Book{}}
}

func (m *memoryRepository) Insert(_ context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.ID] = *b
	return nil
}

func (m *memoryRepository) Get(_ context.Context, id uuid.UUID) (*Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	return &b, nil
}

func (m *memoryRepository) List(_ context.Context, f Filter) ([]Book, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Book
	for _, b := range m.books {
		if f.Title != "" && !strings.Contains(strings.ToLower(b.Title), strings.ToLower(f.Title)) {
			continue
		}
		if f.Author != "" && !strings.Contains(strings.ToLower(b.Author), strings.ToLower(f.Author)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	total := len(out)
	if f.Offset >= len(out) {
		return []Book{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *memoryRepository) Update(_ context.Context, b *Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[b.ID]; !ok {
		return ErrBookNotFound
	}
	m.books[b.ID] = *b
	return nil
}

func (m *memoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.books[id]; !ok {
		return ErrBookNotFound
	}
	delete(m.books, id)
	return nil
}
