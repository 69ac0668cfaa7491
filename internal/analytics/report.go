package analytics

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/quizforge/quizforge/internal/quiz"
)

// CategoryStat is the rollup across all of a user's records in one category,
// weighted by attempt count.
type CategoryStat struct {
	Category      string  `json:"category"`
	TotalAttempts int64   `json:"total_attempts"`
	AverageScore  float64 `json:"average_score"`
}

// CategoryPerformance folds a user's records into per-category stats.
func CategoryPerformance(records []Record) []CategoryStat {
	type acc struct {
		attempts int64
		weighted float64
	}
	byCat := map[string]*acc{}
	for _, r := range records {
		cat := r.Category
		if cat == "" {
			cat = "uncategorized"
		}
		a, ok := byCat[cat]
		if !ok {
			a = &acc{}
			byCat[cat] = a
		}
		a.attempts += r.Attempts
		a.weighted += r.AverageScore * float64(r.Attempts)
	}
	out := make([]CategoryStat, 0, len(byCat))
	for cat, a := range byCat {
		cs := CategoryStat{Category: cat, TotalAttempts: a.attempts}
		if a.attempts > 0 {
			cs.AverageScore = a.weighted / float64(a.attempts)
		}
		out = append(out, cs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// QuestionDifficulty is the per-question report for a quiz, aggregated
// across every user's record.
type QuestionDifficulty struct {
	QuestionID    string  `json:"question_id"`
	Prompt        string  `json:"prompt"`
	Difficulty    string  `json:"difficulty,omitempty"`
	TotalAttempts int64   `json:"total_attempts"`
	CorrectRate   float64 `json:"correct_rate"` // percentage
	AvgTimeSec    float64 `json:"avg_time_sec"`
}

// QuestionDifficultyReport aggregates per-question stats for every question
// in the quiz, in question order. Questions nobody attempted report zeros.
func QuestionDifficultyReport(z quiz.Quiz, records []Record) []QuestionDifficulty {
	out := make([]QuestionDifficulty, 0, len(z.Questions))
	for _, q := range z.Questions {
		var attempts, correct int64
		var timeSum float64
		for _, r := range records {
			for _, qs := range r.Questions {
				if qs.QuestionID != q.ID {
					continue
				}
				attempts += qs.Attempts
				correct += qs.Correct
				timeSum += qs.AvgTimeSec * float64(qs.Attempts)
			}
		}
		qd := QuestionDifficulty{
			QuestionID:    q.ID,
			Prompt:        q.Prompt,
			Difficulty:    q.Difficulty,
			TotalAttempts: attempts,
		}
		if attempts > 0 {
			qd.CorrectRate = float64(correct) / float64(attempts) * 100
			qd.AvgTimeSec = timeSum / float64(attempts)
		}
		out = append(out, qd)
	}
	return out
}

// WriteCSV streams a user's records as CSV, one row per (quiz, user) record.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	header := []string{"quiz_id", "category", "attempts", "average_score", "highest_score", "time_spent_sec", "last_updated"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.QuizID,
			r.Category,
			strconv.FormatInt(r.Attempts, 10),
			strconv.FormatFloat(r.AverageScore, 'f', 2, 64),
			strconv.FormatFloat(r.HighestScore, 'f', 2, 64),
			strconv.FormatInt(r.TimeSpentSec, 10),
			time.Unix(r.LastUpdated, 0).UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
