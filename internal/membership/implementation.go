// internal/membership/implementation.go
package membership

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/ratelimit"
	"libraryrental/internal/validation"
	"libraryrental/pkg/eventstore"
)

var (
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrEmailTaken         = apperr.Validation("email: user with this email already exists")
	ErrInvalidCredentials = apperr.Authentication("no active account found with the given credentials")
	ErrRateLimited        = apperr.RateLimited("request was throttled, try again later")
)

// Unknown emails are checked against this hash so a miss costs as much as a
// wrong password.
var dummyHash, dummySalt, _ = hashPassword("not-a-real-password")

// service implements the Service interface.
type service struct {
	repo        Repository
	tokens      *auth.TokenIssuer
	validator   *validation.Validator
	rateLimiter Limiter
	now         func() time.Time
	tracer      trace.Tracer
}

// NewService creates a new membership service instance. limiter throttles
// registration and login per client, keyed by ratelimit.ClientFrom.
func NewService(repo Repository, tokens *auth.TokenIssuer, v *validation.Validator, limiter Limiter) Service {
	return &service{
		repo:        repo,
		tokens:      tokens,
		validator:   v,
		rateLimiter: limiter,
		now:         time.Now,
		tracer:      otel.Tracer("libraryrental/membership"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateStaff registers an account with staff rights. It is not rate
// limited and has no HTTP route.
func (s *service) CreateStaff(ctx context.Context, in RegisterInput) (*User, error) {
	return s.create(ctx, in, true)
}

// Register creates a non-staff account.
func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if !s.rateLimiter.Allow(ratelimit.ClientFrom(ctx)) {
		return nil, ErrRateLimited
	}
	return s.create(ctx, in, false)
}

func (s *service) create(ctx context.Context, in RegisterInput, staff bool) (*User, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register")
	defer span.End()

	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	passwordHash, salt, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:        uuid.New(),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		IsStaff:   staff,
		CreatedAt: now,
		UpdatedAt: now,
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	event, err := eventstore.NewEvent(EventUserRegistered, UserRegistered{
		ID:      user.ID,
		Email:   user.Email,
		IsStaff: staff,
	}, nil)
	if err != nil {
		return nil, err
	}
	cred := Credential{UserID: user.ID, PasswordHash: passwordHash, Salt: salt}
	if err := s.repo.Create(ctx, user, cred, event); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a user's credentials and issues an access token.
func (s *service) Authenticate(ctx context.Context, in LoginInput) (*Token, error) {
	if !s.rateLimiter.Allow(ratelimit.ClientFrom(ctx)) {
		return nil, ErrRateLimited
	}
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	user, cred, err := s.repo.GetByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, fmt.Errorf("authentication failed: %w", err)
		}
		_, _ = verifyPassword(in.Password, dummySalt, dummyHash)
		return nil, ErrInvalidCredentials
	}

	ok, err := verifyPassword(in.Password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.Issue(user.ID, user.IsStaff)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return &Token{
		Access:    access,
		TokenType: "Bearer",
		ExpiresIn: int(s.tokens.TTL().Seconds()),
	}, nil
}

// GetUser retrieves a user by their ID.
func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateMe changes the caller's names and, optionally, password.
func (s *service) UpdateMe(ctx context.Context, id uuid.UUID, patch UserPatch) (*User, error) {
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var changed []string
	if patch.FirstName != nil {
		user.FirstName = strings.TrimSpace(*patch.FirstName)
		changed = append(changed, "first_name")
	}
	if patch.LastName != nil {
		user.LastName = strings.TrimSpace(*patch.LastName)
		changed = append(changed, "last_name")
	}
	var cred *Credential
	if patch.Password != nil {
		hash, salt, err := hashPassword(*patch.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		cred = &Credential{UserID: id, PasswordHash: hash, Salt: salt}
		changed = append(changed, "password")
	}
	if len(changed) == 0 {
		return user, nil
	}
	return s.save(ctx, user, cred, changed)
}

func (s *service) save(ctx context.Context, user *User, cred *Credential, changed []string) (*User, error) {
	user.UpdatedAt = s.now().UTC()
	event, err := eventstore.NewEvent(EventUserUpdated, UserUpdated{ID: user.ID, Changed: changed}, nil)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, user, cred, event); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// SetStaff grants or revokes staff rights.
func (s *service) SetStaff(ctx context.Context, email string, staff bool) (*User, error) {
	user, _, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user.IsStaff == staff {
		return user, nil
	}
	user.IsStaff = staff
	return s.save(ctx, user, nil, []string{"is_staff"})
}

// LookupActor resolves a token subject for the auth middleware. The staff flag
// comes from the database, not from the token.
func (s *service) LookupActor(ctx context.Context, id uuid.UUID) (auth.Actor, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return auth.Actor{}, err
	}
	return auth.Actor{UserID: user.ID, Email: user.Email, IsStaff: user.IsStaff}, nil
}
