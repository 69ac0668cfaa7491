package quiz

import "context"

type ListOpts struct {
	Category string
	Status   string
	Search   string // substring match on title
	OwnerID  string
	Limit    int
	Offset   int
}

type AttemptListOpts struct {
	QuizID string
	UserID string
	Status string
	Limit  int
	Offset int
}

// Summary is the answer-free listing row for quizzes.
type Summary struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Category     string  `json:"category,omitempty"`
	Status       string  `json:"status"`
	OwnerID      string  `json:"owner_id"`
	NumQuestions int     `json:"num_questions"`
	MaxPoints    float64 `json:"max_points"`
	CreatedAt    int64   `json:"created_at,omitempty"`
}

// Store is the persistence boundary for quizzes and attempts. Implementations
// must make UpdateAttempt and CompleteIfBelow safe under concurrent callers:
// both are conditional writes, never read-then-write.
type Store interface {
	PutQuiz(ctx context.Context, z Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error) // full quiz, answer keys included
	DeleteQuiz(ctx context.Context, id string) error
	ListQuizzes(ctx context.Context, opts ListOpts) ([]Summary, error)

	CreateAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// UpdateAttempt persists a only when the stored status equals expect;
	// otherwise it fails with ErrAlreadyCompleted (or ErrAttemptNotFound).
	UpdateAttempt(ctx context.Context, a Attempt, expect string) error
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)

	// CountCompleted reports the user's completed attempts for a quiz.
	CountCompleted(ctx context.Context, userID, quizID string) (int, error)
	// CompleteIfBelow atomically increments the completed-attempt counter
	// for (userID, quizID) while it is below limit and reports whether the
	// increment happened. This is the serialization point for the
	// attempts-allowed ceiling.
	CompleteIfBelow(ctx context.Context, userID, quizID string, limit int) (bool, error)
	// ReleaseCompleted undoes one CompleteIfBelow increment. Used when the
	// conditional attempt write that follows the increment loses a race.
	ReleaseCompleted(ctx context.Context, userID, quizID string) error
}
