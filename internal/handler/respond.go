package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/babysteps/progression/internal/auth"
	"github.com/babysteps/progression/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Code != domain.CodeInternal {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    domain.CodeInternal,
		"message": "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies over
// 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return domain.ErrValidation(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

// userIDFromContext extracts the authenticated user's id.
func userIDFromContext(r *http.Request) (uuid.UUID, error) {
	id, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, domain.ErrUnauthorized("no user in context")
	}
	return id, nil
}

// URLUUID parses the named chi URL parameter as a uuid.
func URLUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := chi.URLParam(r, name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.ErrValidation(fmt.Sprintf("invalid %s: %q", name, raw))
	}
	return id, nil
}

// QueryLimit parses ?limit=, clamped to [1, max] and defaulting to def.
func QueryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
