package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
)

type GradingHandlers struct {
	Svc *quiz.Service
}

// POST /attempts/{attemptID}/grades
// { "grades": { "<question_id>": {"points": 3, "comment": "..."} }, "finalize": true }
func (h *GradingHandlers) ApplyManualGrades(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Grades   map[string]quiz.ManualGradeInput `json:"grades"`
		Finalize bool                             `json:"finalize"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_json", Message: err.Error()})
		return
	}
	if len(req.Grades) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_request", Message: "grades required"})
		return
	}
	a, err := h.Svc.ApplyManualGrades(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"), req.Grades, req.Finalize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
