// internal/membership/handler.go
package membership

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

// Routes mounts /users. Registration and login are public.
func (h *Handler) Routes(mw *auth.Middleware) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.handleRegister)
	r.Post("/token", h.handleToken)
	r.Group(func(r chi.Router) {
		r.Use(mw.Required)
		r.Get("/me", h.handleGetMe)
		r.Patch("/me", h.handleUpdateMe)
		r.Put("/me", h.handleUpdateMe)
	})
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	user, err := h.service.Register(r.Context(), req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	var req LoginInput
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	token, err := h.service.Authenticate(r.Context(), req)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, token)
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.ActorFrom(r.Context())
	user, err := h.service.GetUser(r.Context(), actor.UserID)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var patch UserPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	actor, _ := auth.ActorFrom(r.Context())
	user, err := h.service.UpdateMe(r.Context(), actor.UserID, patch)
	if err != nil {
		httpx.WriteAppError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}
