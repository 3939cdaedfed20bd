package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
	auth "github.com/mind-engage/mindengage-assess/internal/auth/middleware"
	"github.com/mind-engage/mindengage-assess/internal/content"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

type errorBody struct {
	Error   string    `json:"error"`
	Message string    `json:"message"`
	Item    *itemBody `json:"item,omitempty"`
}

type itemBody struct {
	Index      int   `json:"index"`
	QuestionID int64 `json:"question_id"`
}

func statusFor(k attempt.Kind) int {
	switch k {
	case attempt.KindPermissionDenied:
		return http.StatusForbidden
	case attempt.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// respondError maps domain errors to 4xx bodies. Anything else is logged and
// reported as 500 without detail.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		bulk *attempt.BulkItemError
		de   *attempt.Error
	)
	switch {
	case errors.As(err, &bulk):
		respondJSON(w, statusFor(bulk.Err.Kind), errorBody{
			Error:   string(bulk.Err.Kind),
			Message: bulk.Error(),
			Item:    &itemBody{Index: bulk.Index, QuestionID: bulk.QuestionID},
		})
	case errors.As(err, &de):
		respondJSON(w, statusFor(de.Kind), errorBody{Error: string(de.Kind), Message: de.Error()})
	case errors.Is(err, content.ErrInvalidDefinition):
		respondJSON(w, http.StatusBadRequest, errorBody{Error: string(attempt.KindValidation), Message: err.Error()})
	case errors.Is(err, content.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: string(attempt.KindNotFound), Message: err.Error()})
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: string(attempt.KindValidation), Message: msg})
}

func callerFrom(r *http.Request) attempt.Caller {
	sub, role := auth.Identity(r.Context())
	return attempt.Caller{ID: sub, Role: role}
}

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return v, err == nil && v > 0
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}
