// internal/catalog/handler.go
package catalog

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

// Routes mounts the /books resource. Reads are public; writes need staff.
func (h *Handler) Routes(mw *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(mw.Optional)
		r.Get("/", h.handleListBooks)
		r.Get("/{id}", h.handleGetBook)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Required, auth.RequireStaff)
		r.Post("/", h.handleCreateBook)
		r.Put("/{id}", h.handleUpdateBook)
		r.Patch("/{id}", h.handlePatchBook)
		r.Delete("/{id}", h.handleDeleteBook)
	})
	return r
}

func (h *Handler) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := httpx.ParsePage(r)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	q := r.URL.Query()
	books, total, err := h.service.ListBooks(r.Context(), Filter{
		Title:  q.Get("title"),
		Author: q.Get("author"),
		Limit:  page.Limit,
		Offset: page.Offset,
	})
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, httpx.NewList(total, books))
}

func (h *Handler) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	var req BookInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	book, err := h.service.CreateBook(r.Context(), req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, book)
}

func (h *Handler) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	var req BookInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	book, err := h.service.UpdateBook(r.Context(), id, req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handlePatchBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	var req BookPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	book, err := h.service.PatchBook(r.Context(), id, req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, book)
}

func (h *Handler) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
