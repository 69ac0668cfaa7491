package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/quizforge/quizforge/internal/quiz"
)

// Store is the persistence boundary for analytics records. Apply must run
// fn inside the store's per-(user,quiz) critical section so concurrent
// folds never interleave a read-modify-write, and must reject events whose
// attempt id was applied before (returning applied=false).
type Store interface {
	Apply(ctx context.Context, key Key, ev AppliedEvent, fn func(*Record)) (applied bool, err error)
	Get(ctx context.Context, key Key) (Record, error)
	ListByUser(ctx context.Context, userID string) ([]Record, error)
	ListByQuiz(ctx context.Context, quizID string) ([]Record, error)
}

// ErrRecordNotFound is returned by Get/List when nothing has been recorded.
var ErrRecordNotFound = fmt.Errorf("analytics record not found")

// Aggregator folds completed attempts into running statistics.
type Aggregator struct {
	store Store
	now   func() time.Time
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// NewAggregatorWithClock is test-only for deterministic timestamps.
func NewAggregatorWithClock(store Store, now func() time.Time) *Aggregator {
	return &Aggregator{store: store, now: now}
}

// Record folds a completed attempt into the (user, quiz) record and reports
// whether anything changed. Recording the same attempt twice is a no-op, so
// callers do not have to guarantee exactly-once invocation.
func (ag *Aggregator) Record(ctx context.Context, z quiz.Quiz, a quiz.Attempt) (Record, bool, error) {
	if a.Status != quiz.AttemptCompleted {
		return Record{}, false, fmt.Errorf("cannot record attempt %s in status %q", a.ID, a.Status)
	}
	key := Key{UserID: a.UserID, QuizID: a.QuizID}
	ev := AppliedEvent{AttemptID: a.ID, Score: a.Percentage}
	now := ag.now().Unix()
	applied, err := ag.store.Apply(ctx, key, ev, func(r *Record) {
		fold(r, z, a, now)
	})
	if err != nil {
		return Record{}, false, err
	}
	rec, err := ag.store.Get(ctx, key)
	if err != nil {
		return Record{}, applied, err
	}
	return rec, applied, nil
}

// RecordAttempt adapts Record to the quiz service's AttemptRecorder.
func (ag *Aggregator) RecordAttempt(ctx context.Context, z quiz.Quiz, a quiz.Attempt) error {
	_, _, err := ag.Record(ctx, z, a)
	return err
}

// fold is the pure aggregation step, shared by every store implementation.
func fold(r *Record, z quiz.Quiz, a quiz.Attempt, now int64) {
	r.UserID = a.UserID
	r.QuizID = a.QuizID
	r.Category = z.Category

	n := float64(r.Attempts)
	r.AverageScore += (a.Percentage - r.AverageScore) / (n + 1)
	r.Attempts++
	if a.Percentage > r.HighestScore {
		r.HighestScore = a.Percentage
	}
	r.TimeSpentSec += a.TimeSpentSec

	// No per-question timing is captured; spread the attempt's elapsed time
	// evenly across questions.
	perQuestion := 0.0
	if len(z.Questions) > 0 {
		perQuestion = float64(a.TimeSpentSec) / float64(len(z.Questions))
	}
	for _, ans := range a.Answers {
		qs := r.questionStat(ans.QuestionID)
		qs.Attempts++
		if ans.Correct != nil && *ans.Correct {
			qs.Correct++
		}
		qs.AvgTimeSec += (perQuestion - qs.AvgTimeSec) / float64(qs.Attempts)
	}
	r.LastUpdated = now
}
