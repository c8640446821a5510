// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"

	"libraryrental/internal/auth"
	"libraryrental/pkg/eventstore"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	Authenticate(ctx context.Context, in LoginInput) (*Token, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	UpdateMe(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error)
	CreateStaff(ctx context.Context, in RegisterInput) (*User, error)
	SetStaff(ctx context.Context, email string, staff bool) (*User, error)
	LookupActor(ctx context.Context, id uuid.UUID) (auth.Actor, error)
}

// Repository persists users. Every write records its event in the same
// transaction.
type Repository interface {
	Create(ctx context.Context, u *User, cred Credential, event eventstore.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, *Credential, error)
	Update(ctx context.Context, u *User, cred *Credential, event eventstore.Event) error
}

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(key string) bool
}
