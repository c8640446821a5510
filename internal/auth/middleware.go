package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"libraryrental/internal/apperr"
	"libraryrental/internal/httpx"
)

// UserLookup resolves a token subject to a current actor. It returns an
// apperr NotFound error when the user no longer exists.
type UserLookup interface {
	LookupActor(ctx context.Context, id uuid.UUID) (Actor, error)
}

type Middleware struct {
	tokens *TokenIssuer
	users  UserLookup
}

func NewMiddleware(tokens *TokenIssuer, users UserLookup) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

var errNoCredentials = apperr.Authentication("authentication credentials were not provided")

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(header[7:])
	return token, token != ""
}

func (m *Middleware) resolve(r *http.Request) (Actor, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Actor{}, errNoCredentials
	}
	id, err := m.tokens.Verify(raw)
	if err != nil {
		return Actor{}, apperr.Wrap(apperr.KindAuthentication, "given token not valid", err)
	}
	actor, err := m.users.LookupActor(r.Context(), id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return Actor{}, apperr.Authentication("user not found")
		}
		return Actor{}, err
	}
	return actor, nil
}

// Required rejects requests without a valid bearer token.
func (m *Middleware) Required(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.resolve(r)
		if err != nil {
			httpx.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// Optional lets anonymous requests through but still rejects a bad token.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := m.resolve(r)
		switch {
		case err == nil:
			r = r.WithContext(WithActor(r.Context(), actor))
		case errors.Is(err, errNoCredentials):
		default:
			slog.Debug("optional auth rejected", "err", err)
			httpx.WriteAppError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff must run after Required.
func RequireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFrom(r.Context())
		if !ok {
			httpx.WriteAppError(w, r, errNoCredentials)
			return
		}
		if !actor.IsStaff {
			httpx.WriteAppError(w, r, apperr.Permission("you do not have permission to perform this action"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
