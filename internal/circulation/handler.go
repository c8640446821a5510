// internal/circulation/handler.go
package circulation

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"libraryrental/internal/apperr"
	"libraryrental/internal/auth"
	"libraryrental/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the /borrowings resource. Every endpoint needs a user.
func (h *Handler) Routes(mw *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Required)
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Get("/{id}/history", h.handleHistory)
	r.Post("/{id}/return", h.handleReturn)
	return r
}

func actorOf(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

// parseListFilter reads is_active and, for staff only, user_id.
func parseListFilter(r *http.Request, actor auth.Actor) (ListFilter, error) {
	page, err := httpx.ParsePage(r)
	if err != nil {
		return ListFilter{}, err
	}
	filter := ListFilter{Limit: page.Limit, Offset: page.Offset}
	q := r.URL.Query()

	switch strings.ToLower(q.Get("is_active")) {
	case "true":
		active := true
		filter.Active = &active
	case "false":
		active := false
		filter.Active = &active
	}

	if raw := strings.TrimSpace(q.Get("user_id")); raw != "" && actor.IsStaff {
		id, err := uuid.Parse(raw)
		if err != nil {
			return ListFilter{}, apperr.Validation("user_id: must be a valid UUID")
		}
		filter.UserID = &id
	}
	return filter, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor := actorOf(r)
	filter, err := parseListFilter(r, actor)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	items, total, err := h.service.ListBorrowings(r.Context(), actor, filter)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(total, items))
}

type createFailedResponse struct {
	Error     string      `json:"error"`
	Code      string      `json:"code"`
	RequestID string      `json:"request_id,omitempty"`
	Borrowing CreatedView `json:"borrowing"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	borrowing, err := h.service.CreateBorrowing(r.Context(), actorOf(r), req)
	if err != nil {
		if borrowing == nil {
			httpx.WriteAppError(w, r, err)
			return
		}
		// The borrowing is committed; tell the client which one.
		httpx.WriteJSON(w, httpx.StatusFor(err), createFailedResponse{
			Error:     apperr.MessageOf(err, "internal error"),
			Code:      string(apperr.KindOf(err)),
			RequestID: middleware.GetReqID(r.Context()),
			Borrowing: borrowing.CreatedView(),
		})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, borrowing.CreatedView())
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	borrowing, err := h.service.GetBorrowing(r.Context(), actorOf(r), id)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, borrowing)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	events, err := h.service.BorrowingHistory(r.Context(), actorOf(r), id)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(len(events), events))
}

// handleReturn answers 405 rather than 403 when the caller does not own the
// borrowing.
func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	borrowing, err := h.service.ReturnBorrowing(r.Context(), actorOf(r), id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPermission {
			httpx.WriteError(w, r, http.StatusMethodNotAllowed, apperr.KindPermission,
				apperr.MessageOf(err, "not allowed"))
			return
		}
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, borrowing)
}
