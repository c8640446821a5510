// Package httpx holds the JSON request/response helpers shared by every
// resource handler.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"libraryrental/internal/apperr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	maxBodyBytes = 1 << 20
)

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteError writes {"error", "code", "request_id"} with the given status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code apperr.Kind, msg string) {
	WriteJSON(w, status, errorResponse{
		Error:     msg,
		Code:      string(code),
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// StatusFor maps an error's kind to an HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteAppError writes err using its kind. Internal errors are logged and
// replaced with a generic message.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
	}
	WriteError(w, r, status, kind, apperr.MessageOf(err, "internal error"))
}

// DecodeJSON decodes a single JSON object from the request body into dst,
// rejecting unknown fields and trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is empty")
		}
		return apperr.Wrap(apperr.KindValidation, "invalid request body", err)
	}
	if dec.More() {
		return apperr.Validation("request body must contain a single JSON object")
	}
	return nil
}

// ParseID parses a path segment as a UUID. A malformed id cannot name any
// resource, so it is reported as not found.
func ParseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.NotFound("not found")
	}
	return id, nil
}

// Page is a limit/offset window.
type Page struct {
	Limit  int
	Offset int
}

// ParsePage reads limit and offset from the query string.
func ParsePage(r *http.Request) (Page, error) {
	p := Page{Limit: DefaultLimit}
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return p, apperr.Validation(fmt.Sprintf("invalid limit %q", v))
		}
		p.Limit = min(n, MaxLimit)
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, apperr.Validation(fmt.Sprintf("invalid offset %q", v))
		}
		p.Offset = n
	}
	return p, nil
}

// List is the paginated response envelope.
type List[T any] struct {
	Count   int `json:"count"`
	Results []T `json:"results"`
}

// NewList never returns a null results array.
func NewList[T any](count int, results []T) List[T] {
	if results == nil {
		results = []T{}
	}
	return List[T]{Count: count, Results: results}
}

// MethodNotAllowed answers 405 for read-only resources.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, http.StatusMethodNotAllowed, apperr.KindPermission,
		fmt.Sprintf("method %q not allowed", r.Method))
}
