package membership

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"libraryrental/pkg/eventstore"
)

type memoryRepository struct {
	mu     sync.Mutex
	users  map[uuid.UUID]User
	creds  map[uuid.UUID]Credential
	events map[uuid.UUID][]eventstore.Event
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users:  map[uuid.UUID]User{},
		creds:  map[uuid.UUID]Credential{},
		events: map[uuid.UUID][]eventstore.Event{},
	}
}

func (m *memoryRepository) Create(_ context.Context, u *User, cred Credential, event eventstore.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrEmailTaken
		}
	}
	m.users[u.ID] = *u
	m.creds[u.ID] = cred
	m.events[u.ID] = append(m.events[u.ID], event)
	return nil
}

func (m *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (m *memoryRepository) GetByEmail(_ context.Context, email string) (*User, *Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cred := m.creds[u.ID]
			return &u, &cred, nil
		}
	}
	return nil, nil, ErrUserNotFound
}

func (m *memoryRepository) Update(_ context.Context, u *User, cred *Credential, event eventstore.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return ErrUserNotFound
	}
	m.users[u.ID] = *u
	if cred != nil {
		m.creds[u.ID] = *cred
	}
	m.events[u.ID] = append(m.events[u.ID], event)
	return nil
}

func (m *memoryRepository) eventTypes(id uuid.UUID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events[id] {
		out = append(out, e.EventType)
	}
	return out
}
