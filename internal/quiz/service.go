package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/quizforge/quizforge/internal/grading"
	"github.com/quizforge/quizforge/internal/rbac"
)

// submitGraceSec is how far past startTime + timeLimit a submission may
// still land. It absorbs clock skew and transport latency; anything later
// fails with ErrAttemptExpired.
const submitGraceSec = 30

// AttemptRecorder receives completed attempts for analytics. Implementations
// must be idempotent per attempt id: the service re-invokes it on duplicate
// submissions so a record lost to a transient failure heals on retry.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, z Quiz, a Attempt) error
}

// Service contains the quiz and attempt use cases. Every operation takes
// the authenticated actor and consults the access policy before touching
// the store.
type Service struct {
	store    Store
	grader   grading.Grader
	recorder AttemptRecorder
	now      func() time.Time
}

func NewService(store Store, grader grading.Grader, recorder AttemptRecorder) *Service {
	return NewServiceWithClock(store, grader, recorder, time.Now)
}

// NewServiceWithClock allows deterministic timestamps in tests.
func NewServiceWithClock(store Store, grader grading.Grader, recorder AttemptRecorder, now func() time.Time) *Service {
	return &Service{store: store, grader: grader, recorder: recorder, now: now}
}

// --- quiz CRUD ---

func (s *Service) CreateQuiz(ctx context.Context, actor rbac.Actor, z Quiz) (Quiz, error) {
	if !rbac.Decide(actor, rbac.ActionQuizCreate, rbac.Resource{Type: rbac.ResourceQuiz, OwnerID: actor.ID}) {
		return Quiz{}, ErrForbidden
	}
	z.ID = uuid.NewString()
	z.OwnerID = actor.ID
	if z.Status == "" {
		z.Status = StatusDraft
	}
	applyDefaults(&z)
	now := s.now().Unix()
	z.CreatedAt, z.UpdatedAt = now, now
	if err := z.Validate(); err != nil {
		return Quiz{}, err
	}
	if err := s.store.PutQuiz(ctx, z); err != nil {
		return Quiz{}, err
	}
	return z, nil
}

// GetQuiz returns the quiz visible to the actor. Owners, collaborators and
// admins see the full definition; students get answer keys stripped and,
// when the quiz asks for it, question/option order shuffled.
func (s *Service) GetQuiz(ctx context.Context, actor rbac.Actor, id string) (Quiz, error) {
	z, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if !rbac.Decide(actor, rbac.ActionQuizRead, quizResource(z)) {
		return Quiz{}, ErrForbidden
	}
	if s.managesQuiz(actor, z) {
		return z, nil
	}
	stripAnswers(&z)
	if z.Settings.RandomizeQuestions {
		rand.Shuffle(len(z.Questions), func(i, j int) {
			z.Questions[i], z.Questions[j] = z.Questions[j], z.Questions[i]
		})
	}
	if z.Settings.RandomizeOptions {
		for i := range z.Questions {
			opts := z.Questions[i].Options
			rand.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
		}
	}
	return z, nil
}

// UpdateQuiz replaces the mutable fields: title, description, category,
// tags, questions, settings and status. Identity, ownership and timestamps
// are preserved.
func (s *Service) UpdateQuiz(ctx context.Context, actor rbac.Actor, id string, in Quiz) (Quiz, error) {
	z, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if !rbac.Decide(actor, rbac.ActionQuizUpdate, quizResource(z)) {
		return Quiz{}, ErrForbidden
	}
	z.Title = in.Title
	z.Description = in.Description
	z.Category = in.Category
	z.Tags = in.Tags
	z.Questions = in.Questions
	z.Settings = in.Settings
	if in.Status != "" {
		z.Status = in.Status
	}
	applyDefaults(&z)
	z.UpdatedAt = s.now().Unix()
	if err := z.Validate(); err != nil {
		return Quiz{}, err
	}
	if err := s.store.PutQuiz(ctx, z); err != nil {
		return Quiz{}, err
	}
	return z, nil
}

func (s *Service) DeleteQuiz(ctx context.Context, actor rbac.Actor, id string) error {
	z, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return err
	}
	if !rbac.Decide(actor, rbac.ActionQuizDelete, quizResource(z)) {
		return ErrForbidden
	}
	return s.store.DeleteQuiz(ctx, id)
}

// ListQuizzes scopes the listing by role: students only ever see published
// quizzes, whatever filters they pass.
func (s *Service) ListQuizzes(ctx context.Context, actor rbac.Actor, opts ListOpts) ([]Summary, error) {
	if actor.Role == rbac.RoleStudent {
		opts.Status = StatusPublished
	}
	return s.store.ListQuizzes(ctx, opts)
}

// --- attempt lifecycle ---

// StartAttempt opens an in-progress attempt. The attempts-allowed ceiling
// is checked here for fast feedback, but the authoritative enforcement is
// the conditional counter at submission.
func (s *Service) StartAttempt(ctx context.Context, actor rbac.Actor, quizID string) (Attempt, error) {
	z, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if !rbac.Decide(actor, rbac.ActionAttemptStart, quizResource(z)) {
		return Attempt{}, ErrForbidden
	}
	n, err := s.store.CountCompleted(ctx, actor.ID, quizID)
	if err != nil {
		return Attempt{}, err
	}
	if n >= z.Settings.AttemptsAllowed {
		return Attempt{}, ErrAttemptLimitExceeded
	}
	a := Attempt{
		ID:        uuid.NewString(),
		QuizID:    quizID,
		UserID:    actor.ID,
		Status:    AttemptInProgress,
		StartedAt: s.now().Unix(),
	}
	if err := s.store.CreateAttempt(ctx, a); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// SubmitAttempt grades the raw answers and completes the attempt. Questions
// without a matching answer grade as incorrect for zero points; essays stay
// ungraded and excluded from the percentage denominator until manually
// graded.
func (s *Service) SubmitAttempt(ctx context.Context, actor rbac.Actor, attemptID string, raw []RawAnswer) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if !rbac.Decide(actor, rbac.ActionAttemptSubmit, rbac.Resource{Type: rbac.ResourceAttempt, SubjectUserID: a.UserID}) {
		return Attempt{}, ErrForbidden
	}
	z, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	if a.Status != AttemptInProgress {
		// Re-feed analytics before rejecting: Record is idempotent, so this
		// heals a completion whose analytics write was lost.
		if a.Status == AttemptCompleted && s.recorder != nil {
			_ = s.recorder.RecordAttempt(ctx, z, a)
		}
		return Attempt{}, ErrAlreadyCompleted
	}

	now := s.now()
	if lim := z.Settings.TimeLimitMin; lim > 0 {
		deadline := a.StartedAt + int64(lim)*60 + submitGraceSec
		if now.Unix() > deadline {
			return Attempt{}, ErrAttemptExpired
		}
	}

	byQuestion := make(map[string]RawAnswer, len(raw))
	for _, r := range raw {
		if _, ok := z.Question(r.QuestionID); !ok {
			return Attempt{}, fmt.Errorf("%w: %s", ErrInvalidQuestionRef, r.QuestionID)
		}
		byQuestion[r.QuestionID] = r
	}

	answers := make([]Answer, 0, len(z.Questions))
	for _, q := range z.Questions {
		r, answered := byQuestion[q.ID]
		if !answered {
			answers = append(answers, Answer{QuestionID: q.ID, Correct: boolPtr(false), PointsEarned: floatPtr(0)})
			continue
		}
		res, err := s.grader.Grade(ctx, grading.Q{
			Type:      q.Type,
			Points:    q.Points,
			AnswerKey: q.AnswerKey(),
			Answer:    q.Answer,
		}, r.Value)
		if err != nil {
			return Attempt{}, fmt.Errorf("question %s: %w", q.ID, err)
		}
		ans := Answer{QuestionID: q.ID, Value: r.Value}
		switch res.Outcome {
		case grading.OutcomeCorrect:
			ans.Correct = boolPtr(true)
			ans.PointsEarned = floatPtr(res.Points)
		case grading.OutcomeIncorrect:
			ans.Correct = boolPtr(false)
			ans.PointsEarned = floatPtr(0)
		case grading.OutcomeUngraded:
			// pending manual review
		}
		answers = append(answers, ans)
	}

	// Claim a completion slot before the conditional write; release it if
	// another submission of this attempt won the race.
	ok, err := s.store.CompleteIfBelow(ctx, a.UserID, a.QuizID, z.Settings.AttemptsAllowed)
	if err != nil {
		return Attempt{}, err
	}
	if !ok {
		return Attempt{}, ErrAttemptLimitExceeded
	}

	a.Answers = answers
	a.Status = AttemptCompleted
	a.EndedAt = now.Unix()
	a.TimeSpentSec = a.EndedAt - a.StartedAt
	a.Score, a.Percentage, a.GradingComplete = computeScore(z, answers)

	if err := s.store.UpdateAttempt(ctx, a, AttemptInProgress); err != nil {
		_ = s.store.ReleaseCompleted(ctx, a.UserID, a.QuizID)
		return Attempt{}, err
	}
	if s.recorder != nil {
		if err := s.recorder.RecordAttempt(ctx, z, a); err != nil {
			// The attempt is completed; surface the analytics failure so the
			// client retries the (idempotent) recording path.
			return a, err
		}
	}
	return a, nil
}

func (s *Service) GetAttempt(ctx context.Context, actor rbac.Actor, id string) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return Attempt{}, err
	}
	z, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	if !rbac.Decide(actor, rbac.ActionAttemptRead, attemptResource(z, a)) {
		return Attempt{}, ErrForbidden
	}
	return a, nil
}

// ListAttempts scopes the listing: admins see anything, teachers see
// attempts on quizzes they own or collaborate on plus their own, students
// only their own.
func (s *Service) ListAttempts(ctx context.Context, actor rbac.Actor, opts AttemptListOpts) ([]Attempt, error) {
	switch actor.Role {
	case rbac.RoleAdmin:
	case rbac.RoleTeacher:
		if opts.QuizID != "" {
			z, err := s.store.GetQuiz(ctx, opts.QuizID)
			if err != nil {
				return nil, err
			}
			if !s.managesQuiz(actor, z) {
				opts.UserID = actor.ID
			}
		} else {
			opts.UserID = actor.ID
		}
	default:
		opts.UserID = actor.ID
	}
	return s.store.ListAttempts(ctx, opts)
}

// ApplyManualGrades records teacher-entered points for essay answers on a
// completed attempt and recomputes its score. Essay grades may be corrected
// repeatedly; nothing else on a completed attempt is mutable.
func (s *Service) ApplyManualGrades(ctx context.Context, actor rbac.Actor, attemptID string, items map[string]ManualGradeInput, finalize bool) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	z, err := s.store.GetQuiz(ctx, a.QuizID)
	if err != nil {
		return Attempt{}, err
	}
	if !rbac.Decide(actor, rbac.ActionAttemptGrade, attemptResource(z, a)) {
		return Attempt{}, ErrForbidden
	}
	if a.Status != AttemptCompleted {
		return Attempt{}, fmt.Errorf("attempt %s is not completed", attemptID)
	}
	for qid, g := range items {
		q, ok := z.Question(qid)
		if !ok {
			return Attempt{}, fmt.Errorf("%w: %s", ErrInvalidQuestionRef, qid)
		}
		if q.Type != grading.TypeEssay {
			return Attempt{}, fmt.Errorf("question %s is auto-graded", qid)
		}
		idx := answerIndex(a.Answers, qid)
		if idx < 0 {
			return Attempt{}, fmt.Errorf("%w: %s", ErrInvalidQuestionRef, qid)
		}
		pts := g.Points
		if pts < 0 {
			pts = 0
		}
		if pts > q.Points {
			pts = q.Points
		}
		a.Answers[idx].PointsEarned = floatPtr(pts)
		a.Answers[idx].Comment = g.Comment
	}
	a.Score, a.Percentage, a.GradingComplete = computeScore(z, a.Answers)
	if finalize {
		a.GradingComplete = true
	}
	if err := s.store.UpdateAttempt(ctx, a, AttemptCompleted); err != nil {
		return Attempt{}, err
	}
	return a, nil
}

// --- helpers ---

// computeScore totals earned points. Ungraded answers are excluded from
// both numerator and denominator, so a pending essay neither helps nor
// hurts the percentage until its manual grade lands.
func computeScore(z Quiz, answers []Answer) (score, percentage float64, complete bool) {
	complete = true
	byID := make(map[string]Answer, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a
	}
	var denom float64
	for _, q := range z.Questions {
		a, ok := byID[q.ID]
		if !ok || a.PointsEarned == nil {
			complete = false
			continue
		}
		score += *a.PointsEarned
		denom += q.Points
	}
	if denom > 0 {
		percentage = score / denom * 100
	}
	return score, percentage, complete
}

func (s *Service) managesQuiz(actor rbac.Actor, z Quiz) bool {
	return actor.Role == rbac.RoleAdmin || z.OwnerID == actor.ID || z.IsCollaborator(actor.ID)
}

func quizResource(z Quiz) rbac.Resource {
	return rbac.Resource{
		Type:          rbac.ResourceQuiz,
		OwnerID:       z.OwnerID,
		Collaborators: z.Collaborators,
		QuizStatus:    z.Status,
	}
}

func attemptResource(z Quiz, a Attempt) rbac.Resource {
	return rbac.Resource{
		Type:          rbac.ResourceAttempt,
		OwnerID:       z.OwnerID,
		Collaborators: z.Collaborators,
		QuizStatus:    z.Status,
		SubjectUserID: a.UserID,
	}
}

func applyDefaults(z *Quiz) {
	if z.Settings.AttemptsAllowed == 0 {
		z.Settings.AttemptsAllowed = 1
	}
	if z.Settings.PassingScore == 0 {
		z.Settings.PassingScore = 60
	}
	for i := range z.Questions {
		if z.Questions[i].Points == 0 {
			z.Questions[i].Points = 1
		}
	}
}

func stripAnswers(z *Quiz) {
	for i := range z.Questions {
		z.Questions[i].Answer = ""
		for j := range z.Questions[i].Options {
			z.Questions[i].Options[j].Correct = false
		}
	}
}

func answerIndex(answers []Answer, questionID string) int {
	for i := range answers {
		if answers[i].QuestionID == questionID {
			return i
		}
	}
	return -1
}

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }
