package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/quizforge/quizforge/internal/analytics"
	"github.com/quizforge/quizforge/internal/grading"
	"github.com/quizforge/quizforge/internal/quiz"
)

// apiError is the wire shape for every failure. Codes are stable; messages
// are for humans and may change.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code, status := classify(err)
	if status == http.StatusInternalServerError {
		log.Printf("http: internal error: %v", err)
		writeJSON(w, status, apiError{Code: code, Message: "internal error"})
		return
	}
	writeJSON(w, status, apiError{Code: code, Message: err.Error()})
}

func classify(err error) (code string, status int) {
	switch {
	case errors.Is(err, quiz.ErrQuizNotFound), errors.Is(err, quiz.ErrAttemptNotFound),
		errors.Is(err, analytics.ErrRecordNotFound):
		return "not_found", http.StatusNotFound
	case errors.Is(err, quiz.ErrForbidden):
		return "forbidden", http.StatusForbidden
	case errors.Is(err, quiz.ErrInvalidQuiz):
		return "invalid_quiz", http.StatusBadRequest
	case errors.Is(err, quiz.ErrInvalidQuestionRef):
		return "invalid_question_reference", http.StatusBadRequest
	case errors.Is(err, grading.ErrMalformedAnswer):
		return "malformed_answer", http.StatusBadRequest
	case errors.Is(err, quiz.ErrAttemptLimitExceeded):
		return "attempt_limit_exceeded", http.StatusConflict
	case errors.Is(err, quiz.ErrAttemptExpired):
		return "attempt_expired", http.StatusConflict
	case errors.Is(err, quiz.ErrAlreadyCompleted):
		return "already_completed", http.StatusConflict
	case errors.Is(err, quiz.ErrUnavailable):
		return "unavailable", http.StatusServiceUnavailable
	default:
		return "internal", http.StatusInternalServerError
	}
}
