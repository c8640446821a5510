package circulation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
)

type stubUsers map[uuid.UUID]auth.Actor

func (s stubUsers) LookupActor(_ context.Context, id uuid.UUID) (auth.Actor, error) {
	a, ok := s[id]
	if !ok {
		return auth.Actor{}, apperr.NotFound("user not found")
	}
	return a, nil
}

type apiFixture struct {
	*fixture
	router http.Handler
	tokens map[uuid.UUID]string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	f := newFixture()
	issuer := auth.NewTokenIssuer("secret", time.Hour)
	users := stubUsers{f.member.UserID: f.member, f.other.UserID: f.other, f.staff.UserID: f.staff}
	tokens := map[uuid.UUID]string{}
	for id, a := range users {
		tok, err := issuer.Issue(id, a.IsStaff)
		require.NoError(t, err)
		tokens[id] = tok
	}

	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Mount("/borrowings", NewHandler(f.svc).Routes(auth.NewMiddleware(issuer, users)))
	return &apiFixture{fixture: f, router: r, tokens: tokens}
}

func (a *apiFixture) do(actor *auth.Actor, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		req.Header.Set("Authorization", "Bearer "+a.tokens[actor.UserID])
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func createBody(bookID uuid.UUID, days int) string {
	return `{"book":"` + bookID.String() + `","expected_return_date":"` + today.AddDays(days).String() + `"}`
}

func TestCreateBorrowingEndpoint(t *testing.T) {
	a := newAPIFixture(t)
	book := a.addBook(20)

	assert.Equal(t, http.StatusUnauthorized, a.do(nil, http.MethodPost, "/borrowings/", createBody(book.ID, 10)).Code)

	rec := a.do(&a.member, http.MethodPost, "/borrowings/", createBody(book.ID, 10))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Len(t, created, 3)
	assert.Equal(t, book.ID.String(), created["book"])
	assert.Equal(t, today.AddDays(10).String(), created["expected_return_date"])

	rec = a.do(&a.member, http.MethodPost, "/borrowings/", createBody(book.ID, 0))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "borrow date must be before return date")
}

func TestCreateBorrowingEndpointReportsFollowUpFailure(t *testing.T) {
	a := newAPIFixture(t)
	book := a.addBook(2)
	a.payments.err = errors.New("stripe down")

	rec := a.do(&a.member, http.MethodPost, "/borrowings/", createBody(book.ID, 4))
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Code      string      `json:"code"`
		Borrowing CreatedView `json:"borrowing"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(apperr.KindProvider), body.Code)
	assert.NotEqual(t, uuid.Nil, body.Borrowing.ID)
	assert.Equal(t, 1, a.repo.book(book.ID).Inventory)
}

func TestReturnEndpoint(t *testing.T) {
	a := newAPIFixture(t)
	book := a.addBook(3)
	b := a.borrow(t, a.member, book.ID, 5)
	path := "/borrowings/" + b.ID.String() + "/return/"

	assert.Equal(t, http.StatusMethodNotAllowed, a.do(&a.other, http.MethodPost, path, "").Code)
	assert.Equal(t, http.StatusOK, a.do(&a.member, http.MethodPost, path, "").Code)

	rec := a.do(&a.member, http.MethodPost, path, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already returned")
}

func TestListEndpointFilters(t *testing.T) {
	a := newAPIFixture(t)
	book := a.addBook(5)
	a.borrow(t, a.member, book.ID, 5)
	a.borrow(t, a.other, book.ID, 5)

	var page struct {
		Count   int         `json:"count"`
		Results []Borrowing `json:"results"`
	}

	rec := a.do(&a.member, http.MethodGet, "/borrowings/?user_id="+a.other.UserID.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, a.member.UserID, page.Results[0].UserID)
	require.NotNil(t, page.Results[0].Book)
	assert.Equal(t, "Dune", page.Results[0].Book.Title)

	rec = a.do(&a.staff, http.MethodGet, "/borrowings/?user_id="+a.other.UserID.String()+"&is_active=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, a.other.UserID, page.Results[0].UserID)

	assert.Equal(t, http.StatusBadRequest, a.do(&a.staff, http.MethodGet, "/borrowings/?user_id=7", "").Code)
	assert.Equal(t, http.StatusOK, a.do(&a.member, http.MethodGet, "/borrowings/?user_id=7", "").Code)
}

func TestDetailAndHistoryEndpoints(t *testing.T) {
	a := newAPIFixture(t)
	book := a.addBook(5)
	b := a.borrow(t, a.member, book.ID, 5)

	assert.Equal(t, http.StatusNotFound, a.do(&a.other, http.MethodGet, "/borrowings/"+b.ID.String()+"/", "").Code)
	assert.Equal(t, http.StatusOK, a.do(&a.staff, http.MethodGet, "/borrowings/"+b.ID.String()+"/", "").Code)

	rec := a.do(&a.member, http.MethodGet, "/borrowings/"+b.ID.String()+"/history/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), EventBorrowingCreated)
}
