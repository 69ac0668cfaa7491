package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizforge/quizforge/internal/analytics"
	"github.com/quizforge/quizforge/internal/quiz"
	"github.com/quizforge/quizforge/internal/rbac"
)

type AnalyticsHandlers struct {
	Records analytics.Store
	Quizzes quiz.Store
}

// GET /analytics/me
func (h *AnalyticsHandlers) ListMine(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	recs, err := h.Records.ListByUser(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []analytics.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GET /analytics/me/categories
func (h *AnalyticsHandlers) MyCategories(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	recs, err := h.Records.ListByUser(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.CategoryPerformance(recs))
}

// GET /analytics/me/export?format=csv|json
func (h *AnalyticsHandlers) ExportMine(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	recs, err := h.Records.ListByUser(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		if recs == nil {
			recs = []analytics.Record{}
		}
		writeJSON(w, http.StatusOK, recs)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="analytics.csv"`)
	if err := analytics.WriteCSV(w, recs); err != nil {
		writeError(w, err)
	}
}

// GET /analytics/user/{userID}
//
// Self always works; anyone else's records require the policy to allow it
// (in practice, admins).
func (h *AnalyticsHandlers) ListByUser(w http.ResponseWriter, r *http.Request) {
	actor := rbac.ActorFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	res := rbac.Resource{Type: rbac.ResourceAnalytics, SubjectUserID: userID}
	if !rbac.Decide(actor, rbac.ActionAnalyticsRead, res) {
		writeError(w, quiz.ErrForbidden)
		return
	}
	recs, err := h.Records.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []analytics.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GET /analytics/quiz/{quizID}
func (h *AnalyticsHandlers) ListByQuiz(w http.ResponseWriter, r *http.Request) {
	recs, _, err := h.quizRecords(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []analytics.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// GET /analytics/quiz/{quizID}/questions
func (h *AnalyticsHandlers) QuizQuestionDifficulty(w http.ResponseWriter, r *http.Request) {
	recs, z, err := h.quizRecords(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics.QuestionDifficultyReport(z, recs))
}

// quizRecords fetches the quiz, applies the analytics access policy, and
// returns every record for the quiz.
func (h *AnalyticsHandlers) quizRecords(r *http.Request) ([]analytics.Record, quiz.Quiz, error) {
	actor := rbac.ActorFromContext(r.Context())
	z, err := h.Quizzes.GetQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		return nil, quiz.Quiz{}, err
	}
	res := rbac.Resource{
		Type:          rbac.ResourceAnalytics,
		OwnerID:       z.OwnerID,
		Collaborators: z.Collaborators,
		QuizStatus:    z.Status,
	}
	if !rbac.Decide(actor, rbac.ActionAnalyticsRead, res) {
		return nil, quiz.Quiz{}, quiz.ErrForbidden
	}
	recs, err := h.Records.ListByQuiz(r.Context(), z.ID)
	if err != nil {
		return nil, quiz.Quiz{}, err
	}
	return recs, z, nil
}
