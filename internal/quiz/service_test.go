package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/quizforge/quizforge/internal/grading"
	"github.com/quizforge/quizforge/internal/rbac"
)

type recorderSpy struct {
	mu    sync.Mutex
	calls []Attempt
	fail  error
}

func (r *recorderSpy) RecordAttempt(_ context.Context, _ Quiz, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.calls = append(r.calls, a)
	return nil
}

func (r *recorderSpy) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

var (
	teacherActor = rbac.Actor{ID: "t-1", Role: rbac.RoleTeacher}
	studentActor = rbac.Actor{ID: "s-1", Role: rbac.RoleStudent}
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T) (*Service, *MemoryStore, *recorderSpy, *clock) {
	t.Helper()
	store := NewMemoryStore()
	rec := &recorderSpy{}
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	svc := NewServiceWithClock(store, grading.NewDefaultGrader(), rec, clk.now)
	return svc, store, rec, clk
}

func sampleQuiz(attempts, timeLimitMin int) Quiz {
	return Quiz{
		Title:    "Geography 101",
		Category: "geography",
		Status:   StatusPublished,
		Questions: []Question{
			{ID: "q1", Type: grading.TypeSingleChoice, Prompt: "Capital of France?", Points: 2, Options: []Option{
				{ID: "a", Text: "Berlin"},
				{ID: "b", Text: "Paris", Correct: true},
			}},
			{ID: "q2", Type: grading.TypeTrueFalse, Prompt: "The Nile is in Asia.", Points: 1, Options: []Option{
				{ID: "true", Text: "True"},
				{ID: "false", Text: "False", Correct: true},
			}},
			{ID: "q3", Type: grading.TypeShortAnswer, Prompt: "Largest US city?", Points: 3, Answer: "New York"},
			{ID: "q4", Type: grading.TypeEssay, Prompt: "Describe plate tectonics.", Points: 4},
		},
		Settings: Settings{AttemptsAllowed: attempts, TimeLimitMin: timeLimitMin},
	}
}

func mustCreate(t *testing.T, svc *Service, z Quiz) Quiz {
	t.Helper()
	created, err := svc.CreateQuiz(context.Background(), teacherActor, z)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return created
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestSubmitMixedAnswers(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(3, 0))

	a, err := svc.StartAttempt(context.Background(), studentActor, z.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, []RawAnswer{
		{QuestionID: "q1", Value: raw(`"b"`)},      // correct, 2 pts
		{QuestionID: "q2", Value: raw(`"true"`)},   // wrong, 0 of 1
		{QuestionID: "q3", Value: raw(`"new york"`)}, // correct, 3 pts
		{QuestionID: "q4", Value: raw(`"essay text"`)}, // ungraded
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Status != AttemptCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.Score != 5 {
		t.Fatalf("score = %v, want 5", got.Score)
	}
	// Essay's 4 points are out of the denominator until manually graded.
	want := 5.0 / 6.0 * 100
	if math.Abs(got.Percentage-want) > 1e-9 {
		t.Fatalf("percentage = %v, want %v", got.Percentage, want)
	}
	if got.GradingComplete {
		t.Fatal("grading_complete = true with a pending essay")
	}
	if rec.count() != 1 {
		t.Fatalf("recorder calls = %d, want 1", rec.count())
	}
}

func TestSubmitMissingAnswersScoreZero(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	got, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, []RawAnswer{
		{QuestionID: "q1", Value: raw(`"b"`)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// q2, q3 unanswered: incorrect for zero. q4 unanswered: also zero, so no
	// pending grade remains and the denominator is the full 10 points.
	if got.Score != 2 {
		t.Fatalf("score = %v, want 2", got.Score)
	}
	if math.Abs(got.Percentage-20) > 1e-9 {
		t.Fatalf("percentage = %v, want 20", got.Percentage)
	}
	if !got.GradingComplete {
		t.Fatal("grading_complete = false, want true (nothing pending)")
	}
}

func TestSubmitUnknownQuestionRef(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	_, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, []RawAnswer{
		{QuestionID: "nope", Value: raw(`"b"`)},
	})
	if !errors.Is(err, ErrInvalidQuestionRef) {
		t.Fatalf("err = %v, want ErrInvalidQuestionRef", err)
	}
	if rec.count() != 0 {
		t.Fatal("rejected submission must not reach analytics")
	}
	got, err := svc.GetAttempt(context.Background(), studentActor, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != AttemptInProgress {
		t.Fatalf("status = %s, want still in_progress", got.Status)
	}
}

func TestSubmitAfterGraceExpires(t *testing.T) {
	svc, _, _, clk := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 1)) // 1 minute limit

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)

	// 60s limit + 30s grace: 89s in is fine.
	clk.advance(89 * time.Second)
	if _, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil); err != nil {
		t.Fatalf("submit within grace: %v", err)
	}

	b, _ := svc.StartAttempt(context.Background(), rbac.Actor{ID: "s-2", Role: rbac.RoleStudent}, z.ID)
	clk.advance(91 * time.Second) // one second past s-2's deadline
	_, err := svc.SubmitAttempt(context.Background(), rbac.Actor{ID: "s-2", Role: rbac.RoleStudent}, b.ID, nil)
	if !errors.Is(err, ErrAttemptExpired) {
		t.Fatalf("err = %v, want ErrAttemptExpired", err)
	}
}

func TestResubmitCompletedAttempt(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(3, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	if _, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil)
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("err = %v, want ErrAlreadyCompleted", err)
	}
	// The duplicate submit re-feeds the idempotent recorder.
	if rec.count() != 2 {
		t.Fatalf("recorder calls = %d, want 2", rec.count())
	}
}

func TestAttemptLimitSequential(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	if _, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := svc.StartAttempt(context.Background(), studentActor, z.ID)
	if !errors.Is(err, ErrAttemptLimitExceeded) {
		t.Fatalf("start err = %v, want ErrAttemptLimitExceeded", err)
	}
}

func TestAttemptLimitConcurrentSubmits(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	// Two in-progress attempts racing for a single completion slot.
	a1, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	a2, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{a1.ID, a2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.SubmitAttempt(context.Background(), studentActor, id, nil)
		}(i, id)
	}
	wg.Wait()

	var ok, limited int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAttemptLimitExceeded):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || limited != 1 {
		t.Fatalf("got %d successes and %d limit rejections, want exactly 1 each", ok, limited)
	}
	if rec.count() != 1 {
		t.Fatalf("recorder calls = %d, want 1", rec.count())
	}
}

func TestManualEssayGrading(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	got, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, []RawAnswer{
		{QuestionID: "q1", Value: raw(`"b"`)},
		{QuestionID: "q2", Value: raw(`"false"`)},
		{QuestionID: "q3", Value: raw(`"New York"`)},
		{QuestionID: "q4", Value: raw(`"essay"`)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got.Score != 6 || got.GradingComplete {
		t.Fatalf("pre-grade: score=%v complete=%v, want 6/false", got.Score, got.GradingComplete)
	}

	// Clamp above max to the question's points.
	graded, err := svc.ApplyManualGrades(context.Background(), teacherActor, a.ID,
		map[string]ManualGradeInput{"q4": {Points: 99, Comment: "great"}}, true)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if graded.Score != 10 {
		t.Fatalf("score = %v, want 10", graded.Score)
	}
	if math.Abs(graded.Percentage-100) > 1e-9 {
		t.Fatalf("percentage = %v, want 100", graded.Percentage)
	}
	if !graded.GradingComplete {
		t.Fatal("grading_complete = false after finalize")
	}

	// Corrections remain possible.
	regraded, err := svc.ApplyManualGrades(context.Background(), teacherActor, a.ID,
		map[string]ManualGradeInput{"q4": {Points: 2}}, false)
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if regraded.Score != 8 {
		t.Fatalf("score = %v, want 8", regraded.Score)
	}
}

func TestManualGradeRejectsAutoGraded(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	if _, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err := svc.ApplyManualGrades(context.Background(), teacherActor, a.ID,
		map[string]ManualGradeInput{"q1": {Points: 2}}, false)
	if err == nil {
		t.Fatal("expected error for manual grade on auto-graded question")
	}
}

func TestStudentGetQuizStripsAnswers(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	got, err := svc.GetQuiz(context.Background(), studentActor, z.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	for _, q := range got.Questions {
		if q.Answer != "" {
			t.Fatalf("question %s leaked canonical answer", q.ID)
		}
		for _, o := range q.Options {
			if o.Correct {
				t.Fatalf("question %s leaked correct option %s", q.ID, o.ID)
			}
		}
	}

	full, err := svc.GetQuiz(context.Background(), teacherActor, z.ID)
	if err != nil {
		t.Fatalf("teacher get: %v", err)
	}
	if k := full.Questions[0].AnswerKey(); len(k) != 1 || k[0] != "b" {
		t.Fatalf("owner must see answer key, got %v", k)
	}
}

func TestStudentCannotSeeDraftQuiz(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	draft := sampleQuiz(1, 0)
	draft.Status = StatusDraft
	z := mustCreate(t, svc, draft)

	if _, err := svc.GetQuiz(context.Background(), studentActor, z.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("get err = %v, want ErrForbidden", err)
	}
	if _, err := svc.StartAttempt(context.Background(), studentActor, z.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("start err = %v, want ErrForbidden", err)
	}
}

func TestStudentListSeesOnlyPublished(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	mustCreate(t, svc, sampleQuiz(1, 0))
	draft := sampleQuiz(1, 0)
	draft.Status = StatusDraft
	draft.Title = "Hidden draft"
	mustCreate(t, svc, draft)

	out, err := svc.ListQuizzes(context.Background(), studentActor, ListOpts{Status: StatusDraft})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, s := range out {
		if s.Status != StatusPublished {
			t.Fatalf("student saw %s quiz %s", s.Status, s.ID)
		}
	}
}

func TestSubmitOthersAttemptForbidden(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	other := rbac.Actor{ID: "s-2", Role: rbac.RoleStudent}
	if _, err := svc.SubmitAttempt(context.Background(), other, a.ID, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestRecorderFailureSurfaces(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	rec.fail = errors.New("analytics down")
	z := mustCreate(t, svc, sampleQuiz(1, 0))

	a, _ := svc.StartAttempt(context.Background(), studentActor, z.ID)
	got, err := svc.SubmitAttempt(context.Background(), studentActor, a.ID, nil)
	if err == nil {
		t.Fatal("expected recorder error to surface")
	}
	// The attempt itself still completed.
	if got.Status != AttemptCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestCreateQuizValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	bad := sampleQuiz(1, 0)
	bad.Title = ""
	if _, err := svc.CreateQuiz(context.Background(), teacherActor, bad); !errors.Is(err, ErrInvalidQuiz) {
		t.Fatalf("err = %v, want ErrInvalidQuiz", err)
	}

	if _, err := svc.CreateQuiz(context.Background(), studentActor, sampleQuiz(1, 0)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("student create err = %v, want ErrForbidden", err)
	}
}
