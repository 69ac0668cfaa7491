package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
)

type QuizHandlers struct {
	Svc *quiz.Service
}

// POST /quizzes
func (h *QuizHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in quiz.Quiz
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_json", Message: err.Error()})
		return
	}
	z, err := h.Svc.CreateQuiz(r.Context(), rbac.ActorFromContext(r.Context()), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, z)
}

// GET /quizzes/{quizID}
func (h *QuizHandlers) Get(w http.ResponseWriter, r *http.Request) {
	z, err := h.Svc.GetQuiz(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// PUT /quizzes/{quizID}
func (h *QuizHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var in quiz.Quiz
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: "bad_json", Message: err.Error()})
		return
	}
	z, err := h.Svc.UpdateQuiz(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "quizID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

// DELETE /quizzes/{quizID}
func (h *QuizHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteQuiz(r.Context(), rbac.ActorFromContext(r.Context()), chi.URLParam(r, "quizID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /quizzes?category=&status=&q=&owner=&limit=&offset=
func (h *QuizHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := quiz.ListOpts{
		Category: q.Get("category"),
		Status:   q.Get("status"),
		Search:   q.Get("q"),
		OwnerID:  q.Get("owner"),
		Limit:    atoiOr(q.Get("limit"), 50),
		Offset:   atoiOr(q.Get("offset"), 0),
	}
	out, err := h.Svc.ListQuizzes(r.Context(), rbac.ActorFromContext(r.Context()), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []quiz.Summary{}
	}
	writeJSON(w, http.StatusOK, out)
}

func atoiOr(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
