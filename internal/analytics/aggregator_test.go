package analytics

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/quizforge/quizforge/internal/grading"
	"github.com/quizforge/quizforge/internal/quiz"
)

func testQuiz() quiz.Quiz {
	return quiz.Quiz{
		ID:       "quiz-1",
		Category: "math",
		Questions: []quiz.Question{
			{ID: "q1", Type: grading.TypeSingleChoice, Points: 2},
			{ID: "q2", Type: grading.TypeShortAnswer, Points: 3},
		},
	}
}

func completedAttempt(id string, pct float64, timeSec int64) quiz.Attempt {
	yes, no := true, false
	return quiz.Attempt{
		ID:           id,
		QuizID:       "quiz-1",
		UserID:       "user-1",
		Status:       quiz.AttemptCompleted,
		Percentage:   pct,
		TimeSpentSec: timeSec,
		Answers: []quiz.Answer{
			{QuestionID: "q1", Correct: &yes},
			{QuestionID: "q2", Correct: &no},
		},
	}
}

func newTestAggregator() *Aggregator {
	return NewAggregatorWithClock(NewMemoryStore(), func() time.Time { return time.Unix(1_700_000_000, 0) })
}

func TestRunningMeanMatchesArithmeticMean(t *testing.T) {
	ag := newTestAggregator()
	z := testQuiz()

	scores := []float64{40, 55, 70, 100, 85, 62.5}
	var sum float64
	var rec Record
	for i, s := range scores {
		sum += s
		var err error
		rec, _, err = ag.Record(context.Background(), z, completedAttempt(fmt.Sprintf("a-%d", i), s, 60))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	want := sum / float64(len(scores))
	if math.Abs(rec.AverageScore-want) > 1e-9 {
		t.Fatalf("average = %v, want %v", rec.AverageScore, want)
	}
	if rec.Attempts != int64(len(scores)) {
		t.Fatalf("attempts = %d, want %d", rec.Attempts, len(scores))
	}
}

func TestRecordIsIdempotentPerAttempt(t *testing.T) {
	ag := newTestAggregator()
	z := testQuiz()
	a := completedAttempt("a-1", 80, 120)

	rec, applied, err := ag.Record(context.Background(), z, a)
	if err != nil || !applied {
		t.Fatalf("first record: applied=%v err=%v", applied, err)
	}
	if rec.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", rec.Attempts)
	}

	rec, applied, err = ag.Record(context.Background(), z, a)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if applied {
		t.Fatal("duplicate attempt was applied twice")
	}
	if rec.Attempts != 1 || math.Abs(rec.AverageScore-80) > 1e-9 || rec.TimeSpentSec != 120 {
		t.Fatalf("record mutated by duplicate: %+v", rec)
	}
}

func TestHighestScoreAndTimeAccumulate(t *testing.T) {
	ag := newTestAggregator()
	z := testQuiz()

	ag.Record(context.Background(), z, completedAttempt("a-1", 70, 100))
	ag.Record(context.Background(), z, completedAttempt("a-2", 95, 50))
	rec, _, err := ag.Record(context.Background(), z, completedAttempt("a-3", 60, 30))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.HighestScore != 95 {
		t.Fatalf("highest = %v, want 95", rec.HighestScore)
	}
	if rec.TimeSpentSec != 180 {
		t.Fatalf("time = %d, want 180", rec.TimeSpentSec)
	}
}

func TestRejectsInProgressAttempt(t *testing.T) {
	ag := newTestAggregator()
	a := completedAttempt("a-1", 50, 60)
	a.Status = quiz.AttemptInProgress
	if _, _, err := ag.Record(context.Background(), testQuiz(), a); err == nil {
		t.Fatal("expected error for in-progress attempt")
	}
}

func TestQuestionStats(t *testing.T) {
	ag := newTestAggregator()
	z := testQuiz()

	// q1 correct twice, q2 correct never. 120s over 2 questions = 60s each.
	ag.Record(context.Background(), z, completedAttempt("a-1", 50, 120))
	rec, _, err := ag.Record(context.Background(), z, completedAttempt("a-2", 50, 120))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(rec.Questions) != 2 {
		t.Fatalf("question stats = %d, want 2", len(rec.Questions))
	}
	for _, qs := range rec.Questions {
		if qs.Attempts != 2 {
			t.Fatalf("%s attempts = %d, want 2", qs.QuestionID, qs.Attempts)
		}
		if math.Abs(qs.AvgTimeSec-60) > 1e-9 {
			t.Fatalf("%s avg time = %v, want 60", qs.QuestionID, qs.AvgTimeSec)
		}
		switch qs.QuestionID {
		case "q1":
			if qs.Correct != 2 {
				t.Fatalf("q1 correct = %d, want 2", qs.Correct)
			}
		case "q2":
			if qs.Correct != 0 {
				t.Fatalf("q2 correct = %d, want 0", qs.Correct)
			}
		}
	}
}

func TestCategoryPerformanceWeighting(t *testing.T) {
	records := []Record{
		{Category: "math", Attempts: 3, AverageScore: 80},
		{Category: "math", Attempts: 1, AverageScore: 40},
		{Category: "", Attempts: 2, AverageScore: 50},
	}
	out := CategoryPerformance(records)
	if len(out) != 2 {
		t.Fatalf("categories = %d, want 2", len(out))
	}
	if out[0].Category != "math" || out[1].Category != "uncategorized" {
		t.Fatalf("unexpected order: %+v", out)
	}
	// (80*3 + 40*1) / 4 = 70
	if math.Abs(out[0].AverageScore-70) > 1e-9 || out[0].TotalAttempts != 4 {
		t.Fatalf("math rollup = %+v, want avg 70 over 4 attempts", out[0])
	}
}

func TestQuestionDifficultyReport(t *testing.T) {
	z := testQuiz()
	records := []Record{
		{QuizID: z.ID, Questions: []QuestionStat{
			{QuestionID: "q1", Attempts: 4, Correct: 3, AvgTimeSec: 30},
			{QuestionID: "q2", Attempts: 4, Correct: 1, AvgTimeSec: 90},
		}},
		{QuizID: z.ID, Questions: []QuestionStat{
			{QuestionID: "q1", Attempts: 1, Correct: 0, AvgTimeSec: 50},
		}},
	}
	out := QuestionDifficultyReport(z, records)
	if len(out) != 2 {
		t.Fatalf("rows = %d, want one per quiz question", len(out))
	}
	q1 := out[0]
	if q1.QuestionID != "q1" || q1.TotalAttempts != 5 {
		t.Fatalf("q1 = %+v", q1)
	}
	if math.Abs(q1.CorrectRate-60) > 1e-9 { // 3 of 5
		t.Fatalf("q1 correct rate = %v, want 60", q1.CorrectRate)
	}
	// Weighted time: (30*4 + 50*1) / 5 = 34
	if math.Abs(q1.AvgTimeSec-34) > 1e-9 {
		t.Fatalf("q1 avg time = %v, want 34", q1.AvgTimeSec)
	}
}
