package quiz

import (
	"encoding/json"
	"fmt"

	"github.com/quizforge/quizforge/internal/grading"
)

// Quiz lifecycle states.
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Attempt lifecycle states.
const (
	AttemptInProgress = "in_progress"
	AttemptCompleted  = "completed"
	AttemptAbandoned  = "abandoned"
)

// Question difficulty labels (informational, used by analytics reports).
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct,omitempty"`
}

type Question struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"` // single_choice|true_false|short_answer|essay
	Prompt     string   `json:"prompt"`
	Options    []Option `json:"options,omitempty"` // choice types only
	Answer     string   `json:"answer,omitempty"`  // canonical answer for short_answer
	Points     float64  `json:"points"`
	Difficulty string   `json:"difficulty,omitempty"`
}

// AnswerKey returns the option ids flagged correct.
func (q Question) AnswerKey() []string {
	var key []string
	for _, o := range q.Options {
		if o.Correct {
			key = append(key, o.ID)
		}
	}
	return key
}

// AutoGradable reports whether the question can be scored without review.
func (q Question) AutoGradable() bool {
	return q.Type != grading.TypeEssay
}

type Settings struct {
	TimeLimitMin       int     `json:"time_limit_min"` // 0 = untimed
	RandomizeQuestions bool    `json:"randomize_questions"`
	RandomizeOptions   bool    `json:"randomize_options"`
	PassingScore       float64 `json:"passing_score"` // percentage
	AttemptsAllowed    int     `json:"attempts_allowed"`
}

type Quiz struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Category      string     `json:"category,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	OwnerID       string     `json:"owner_id"`
	Collaborators []string   `json:"collaborators,omitempty"`
	Questions     []Question `json:"questions"`
	Settings      Settings   `json:"settings"`
	Status        string     `json:"status"`
	CreatedAt     int64      `json:"created_at,omitempty"`
	UpdatedAt     int64      `json:"updated_at,omitempty"`
}

// MaxPoints sums the point values of every question.
func (z Quiz) MaxPoints() float64 {
	var sum float64
	for _, q := range z.Questions {
		sum += q.Points
	}
	return sum
}

// Question returns the question with the given id, if present.
func (z Quiz) Question(id string) (Question, bool) {
	for _, q := range z.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// IsCollaborator reports whether userID may edit the quiz alongside the owner.
func (z Quiz) IsCollaborator(userID string) bool {
	for _, c := range z.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// Validate enforces the structural invariants before a quiz is stored.
func (z Quiz) Validate() error {
	if z.Title == "" {
		return fmt.Errorf("%w: title required", ErrInvalidQuiz)
	}
	if len(z.Questions) == 0 {
		return fmt.Errorf("%w: at least one question required", ErrInvalidQuiz)
	}
	if z.Settings.AttemptsAllowed < 1 {
		return fmt.Errorf("%w: attempts_allowed must be >= 1", ErrInvalidQuiz)
	}
	if z.Settings.PassingScore < 0 || z.Settings.PassingScore > 100 {
		return fmt.Errorf("%w: passing_score must be in [0,100]", ErrInvalidQuiz)
	}
	if z.Settings.TimeLimitMin < 0 {
		return fmt.Errorf("%w: time_limit_min must be >= 0", ErrInvalidQuiz)
	}
	switch z.Status {
	case StatusDraft, StatusPublished, StatusArchived:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidQuiz, z.Status)
	}
	seen := make(map[string]struct{}, len(z.Questions))
	for i, q := range z.Questions {
		if q.ID == "" {
			return fmt.Errorf("%w: question %d missing id", ErrInvalidQuiz, i)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question id %q", ErrInvalidQuiz, q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Points < 1 {
			return fmt.Errorf("%w: question %q points must be >= 1", ErrInvalidQuiz, q.ID)
		}
		if err := validateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}

func validateQuestion(q Question) error {
	correct := len(q.AnswerKey())
	switch q.Type {
	case grading.TypeSingleChoice:
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question %q needs at least 2 options", ErrInvalidQuiz, q.ID)
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %q needs exactly one correct option", ErrInvalidQuiz, q.ID)
		}
	case grading.TypeTrueFalse:
		if len(q.Options) != 2 {
			return fmt.Errorf("%w: question %q needs exactly 2 options", ErrInvalidQuiz, q.ID)
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %q needs exactly one correct option", ErrInvalidQuiz, q.ID)
		}
	case grading.TypeShortAnswer:
		if q.Answer == "" {
			return fmt.Errorf("%w: question %q needs a canonical answer", ErrInvalidQuiz, q.ID)
		}
	case grading.TypeEssay:
		// no automatic correctness; nothing to check beyond points
	default:
		return fmt.Errorf("%w: question %q has unknown type %q", ErrInvalidQuiz, q.ID, q.Type)
	}
	return nil
}

// RawAnswer is one submitted answer. Value carries the raw JSON so the
// grader can reject values whose shape does not match the question type.
type RawAnswer struct {
	QuestionID string          `json:"question_id"`
	Value      json.RawMessage `json:"value"`
}

// Answer is the graded form persisted on an attempt. Correct and
// PointsEarned are nil while an essay awaits manual review.
type Answer struct {
	QuestionID   string          `json:"question_id"`
	Value        json.RawMessage `json:"value,omitempty"`
	Correct      *bool           `json:"correct"`
	PointsEarned *float64        `json:"points_earned"`
	Comment      string          `json:"comment,omitempty"` // set by manual grading
}

type Attempt struct {
	ID              string   `json:"id"`
	QuizID          string   `json:"quiz_id"`
	UserID          string   `json:"user_id"`
	Status          string   `json:"status"`
	Answers         []Answer `json:"answers,omitempty"`
	Score           float64  `json:"score"`
	Percentage      float64  `json:"percentage"`
	StartedAt       int64    `json:"started_at"`
	EndedAt         int64    `json:"ended_at,omitempty"`
	TimeSpentSec    int64    `json:"time_spent_sec"`
	GradingComplete bool     `json:"grading_complete"`
}

// ManualGradeInput is a teacher-entered grade for one essay answer.
type ManualGradeInput struct {
	Points  float64 `json:"points"`
	Comment string  `json:"comment,omitempty"`
}
