package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
)

type AttemptHandlers struct {
	Svc *quiz.Service
}

// POST /quizzes/{quizID}/attempts
func (h *AttemptHandlers) Start(w http.ResponseWriter, r *http.Request) {
	a, err := h.Svc.StartAttempt(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// POST /attempts/{attemptID}/submit  { "answers": [ {question_id, value}, ... ] }
func (h *AttemptHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []quiz.RawAnswer `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_json", Message: err.Error()})
		return
	}
	a, err := h.Svc.SubmitAttempt(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"), req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /attempts/{attemptID}
func (h *AttemptHandlers) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.Svc.GetAttempt(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GET /attempts?quiz=&user=&status=&limit=&offset=
func (h *AttemptHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := quiz.AttemptListOpts{
		QuizID: q.Get("quiz"),
		UserID: q.Get("user"),
		Status: q.Get("status"),
		Limit:  atoiOr(q.Get("limit"), 50),
		Offset: atoiOr(q.Get("offset"), 0),
	}
	out, err := h.Svc.ListAttempts(r.Context(), rbac.ActorFromContext(r.Context()), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []quiz.Attempt{}
	}
	writeJSON(w, http.StatusOK, out)
}
