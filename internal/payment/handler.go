// internal/payment/handler.go
package payment

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"libraryrental/internal/auth"
	"libraryrental/internal/httpx"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Routes mounts the read-only /payments resource plus the ad-hoc session
// endpoint.
func (h *Handler) Routes(mw *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.Required)
	r.MethodNotAllowed(httpx.MethodNotAllowed)
	r.Get("/", h.handleList)
	r.Post("/session", h.handleSession)
	r.Get("/{id}", h.handleGet)
	return r
}

func actorOf(r *http.Request) auth.Actor {
	actor, _ := auth.ActorFrom(r.Context())
	return actor
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.ParsePage(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	items, total, err := h.service.ListPayments(r.Context(), actorOf(r), ListFilter{Limit: page.Limit, Offset: page.Offset})
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(total, items))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	detail, err := h.service.GetPayment(r.Context(), actorOf(r), id)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	var req SessionInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	p, err := h.service.CreateSessionForBorrowing(r.Context(), actorOf(r), req.BorrowingID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, p)
}
