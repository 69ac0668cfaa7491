package quiz

import (
	"errors"

	"github.com/quizforge/quizforge/internal/db"
)

var (
	// ErrQuizNotFound indicates the referenced quiz does not exist.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrForbidden is an access-policy denial. It deliberately carries no
	// detail about whether the resource exists.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidQuiz covers structural validation failures on create/update.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrInvalidQuestionRef indicates a submitted answer names a question
	// that is not part of the quiz.
	ErrInvalidQuestionRef = errors.New("answer references unknown question")
	// ErrAttemptLimitExceeded indicates the user already holds the allowed
	// number of completed attempts for the quiz.
	ErrAttemptLimitExceeded = errors.New("attempt limit exceeded")
	// ErrAttemptExpired indicates the submission arrived after the time
	// limit plus grace.
	ErrAttemptExpired = errors.New("attempt time limit exceeded")
	// ErrAlreadyCompleted indicates the attempt was submitted before.
	ErrAlreadyCompleted = errors.New("attempt already completed")
	// ErrUnavailable marks transient persistence failures that survived the
	// bounded retry.
	ErrUnavailable = db.ErrUnavailable
)
