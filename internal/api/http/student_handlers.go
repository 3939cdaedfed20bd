package http

import (
	"encoding/json"
	"net/http"

	"github.com/mind-engage/mindengage-assess/internal/attempt"
)

// POST /tests/{testID}/start
func StartTestHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		out, err := svc.StartTest(r.Context(), callerFrom(r), testID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// POST /tests/{testID}/sections/{sectionID}/start
func StartSectionHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok1 := pathID(r, "testID")
		sectionID, ok2 := pathID(r, "sectionID")
		if !ok1 || !ok2 {
			badRequest(w, "bad test or section id")
			return
		}
		out, err := svc.StartSection(r.Context(), callerFrom(r), testID, sectionID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /tests/{testID}/sections/{sectionID}/questions
func SectionQuestionsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok1 := pathID(r, "testID")
		sectionID, ok2 := pathID(r, "sectionID")
		if !ok1 || !ok2 {
			badRequest(w, "bad test or section id")
			return
		}
		out, err := svc.GetSectionQuestions(r.Context(), callerFrom(r), testID, sectionID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// POST /tests/{testID}/answers
// {"question_id": 1, "section_id": 2, "choice_id": 3} or {"question_id": 1, "text_answer": "..."}
func SubmitAnswerHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		var req struct {
			QuestionID int64  `json:"question_id"`
			SectionID  *int64 `json:"section_id"`
			attempt.Selection
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if req.QuestionID <= 0 {
			badRequest(w, "question_id required")
			return
		}
		ans, err := svc.SubmitAnswer(r.Context(), callerFrom(r), testID, req.SectionID, req.QuestionID, req.Selection)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"status":      "saved",
			"question_id": ans.QuestionID,
			"answered_at": ans.AnsweredAt,
		})
	}
}

// POST /tests/{testID}/sections/{sectionID}/answers
// {"answers": [{"question_id": 1, "choice_id": 3}, ...]}
func SubmitBulkAnswersHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok1 := pathID(r, "testID")
		sectionID, ok2 := pathID(r, "sectionID")
		if !ok1 || !ok2 {
			badRequest(w, "bad test or section id")
			return
		}
		var req struct {
			Answers []attempt.BulkItem `json:"answers"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		saved, err := svc.SubmitBulkAnswers(r.Context(), callerFrom(r), testID, sectionID, req.Answers)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"saved": len(saved), "answers": saved})
	}
}

// POST /tests/{testID}/sections/{sectionID}/complete
func CompleteSectionHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok1 := pathID(r, "testID")
		sectionID, ok2 := pathID(r, "sectionID")
		if !ok1 || !ok2 {
			badRequest(w, "bad test or section id")
			return
		}
		out, err := svc.CompleteSection(r.Context(), callerFrom(r), testID, sectionID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"score":        out.SectionAttempt.Score,
			"total_marks":  out.SectionAttempt.TotalMarks,
			"time_taken":   out.SectionAttempt.TimeTaken,
			"next_section": out.NextSection,
		})
	}
}

// POST /tests/{testID}/complete
func CompleteTestHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		a, err := svc.CompleteTest(r.Context(), callerFrom(r), testID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"attempt_id":  a.ID,
			"score":       a.TotalScore,
			"total_marks": a.TotalMarks,
			"percentage":  a.Percentage,
		})
	}
}

// GET /tests/{testID}/results[?student_id=] ; student_id is for staff only.
func ResultsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		out, err := svc.GetResults(r.Context(), callerFrom(r), testID, r.URL.Query().Get("student_id"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /tests/{testID}/review[?student_id=]
func ReviewHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		testID, ok := pathID(r, "testID")
		if !ok {
			badRequest(w, "bad test id")
			return
		}
		out, err := svc.GetReview(r.Context(), callerFrom(r), testID, r.URL.Query().Get("student_id"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /tests/assigned
func AssignedTestsHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.AssignedTests(r.Context(), callerFrom(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}
