package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryrental/internal/apperr"
)

type fakeUsers map[uuid.UUID]Actor

func (f fakeUsers) LookupActor(_ context.Context, id uuid.UUID) (Actor, error) {
	a, ok := f[id]
	if !ok {
		return Actor{}, apperr.NotFound("user not found")
	}
	return a, nil
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	id := uuid.New()

	tok, err := issuer.Issue(id, true)
	require.NoError(t, err)

	got, err := issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = NewTokenIssuer("other", time.Hour).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
	tok, err := issuer.Issue(uuid.New(), false)
	require.NoError(t, err)

	_, err = NewTokenIssuer("secret", time.Minute).Verify(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newTestMiddleware(t *testing.T) (*Middleware, *TokenIssuer, Actor, Actor) {
	t.Helper()
	issuer := NewTokenIssuer("secret", time.Hour)
	member := Actor{UserID: uuid.New(), Email: "reader@example.com"}
	staff := Actor{UserID: uuid.New(), Email: "admin@example.com", IsStaff: true}
	return NewMiddleware(issuer, fakeUsers{member.UserID: member, staff.UserID: staff}), issuer, member, staff
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	mw, issuer, member, staff := newTestMiddleware(t)
	var seen Actor
	var authed bool
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authed = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	memberTok, err := issuer.Issue(member.UserID, false)
	require.NoError(t, err)
	staffTok, err := issuer.Issue(staff.UserID, true)
	require.NoError(t, err)
	ghostTok, err := issuer.Issue(uuid.New(), true)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(mw.Required(ok), "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw.Required(ok), "garbage").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(mw.Required(ok), ghostTok).Code)

	rec := serve(mw.Required(ok), memberTok)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, authed)
	assert.Equal(t, member, seen)

	assert.Equal(t, http.StatusForbidden, serve(mw.Required(RequireStaff(ok)), memberTok).Code)
	assert.Equal(t, http.StatusNoContent, serve(mw.Required(RequireStaff(ok)), staffTok).Code)

	authed = true
	assert.Equal(t, http.StatusNoContent, serve(mw.Optional(ok), "").Code)
	assert.False(t, authed)
	assert.Equal(t, http.StatusUnauthorized, serve(mw.Optional(ok), "garbage").Code)
}
