// internal/membership/domain.go
package membership

import (
	"time"

	"github.com/google/uuid"
)

const aggregateType = "user"

// User is a library account. Staff users manage the catalog and see every
// borrowing and payment.
type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	IsStaff   bool      `json:"is_staff" db:"is_staff"`
	CreatedAt time.Time `json:"-" db:"created_at"`
	UpdatedAt time.Time `json:"-" db:"updated_at"`
}

// Credential represents a user's login credentials.
type Credential struct {
	UserID       uuid.UUID `db:"id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}

type RegisterInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserPatch carries the fields of a profile update; nil means unchanged.
type UserPatch struct {
	FirstName *string `json:"first_name" validate:"omitnil,max=150"`
	LastName  *string `json:"last_name" validate:"omitnil,max=150"`
	Password  *string `json:"password" validate:"omitnil,min=8,max=128"`
}

// Token is the answer to a successful login.
type Token struct {
	Access    string `json:"access"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
}

// UserRegistered is recorded when an account is created.
type UserRegistered struct {
	ID      uuid.UUID `json:"id"`
	Email   string    `json:"email"`
	IsStaff bool      `json:"is_staff"`
}

// UserUpdated names the fields that changed, never their secret values.
type UserUpdated struct {
	ID      uuid.UUID `json:"id"`
	Changed []string  `json:"changed"`
}

const (
	EventUserRegistered = "UserRegistered"
	EventUserUpdated    = "UserUpdated"
)
