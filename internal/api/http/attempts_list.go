package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
)

// GET /attempts?test_id=...&student_id=...&status=...&limit=50&offset=0
// Students only ever see their own attempts; student_id is ignored for them.
func ListAttemptsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var testID int64
		if v := strings.TrimSpace(q.Get("test_id")); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				badRequest(w, "bad test_id")
				return
			}
			testID = id
		}
		list, err := svc.ListAttempts(r.Context(), callerFrom(r), attempt.AttemptFilter{
			TestID:    testID,
			StudentID: strings.TrimSpace(q.Get("student_id")),
			Status:    attempt.Status(strings.TrimSpace(q.Get("status"))),
			Limit:     parseIntDefault(q.Get("limit"), 50),
			Offset:    parseIntDefault(q.Get("offset"), 0),
		})
		if err != nil {
			respondError(w, r, err)
			return
		}
		if list == nil {
			list = []attempt.Attempt{}
		}
		respondJSON(w, http.StatusOK, list)
	}
}
