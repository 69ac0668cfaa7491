package analytics

// Key identifies the per-user, per-quiz analytics record.
type Key struct {
	UserID string
	QuizID string
}

// QuestionStat tracks one question inside a record. AvgTimeSec is a running
// mean over an approximation: attempt.timeSpent / number of questions, since
// no per-question timer is captured.
type QuestionStat struct {
	QuestionID string  `json:"question_id"`
	Attempts   int64   `json:"attempts"`
	Correct    int64   `json:"correct"`
	AvgTimeSec float64 `json:"avg_time_sec"`
}

// Record is the running aggregate for one user on one quiz. Averages are
// maintained with the incremental mean avg' = avg + (x-avg)/(n+1) so no raw
// sums accumulate drift. Records are only ever appended to, never deleted.
type Record struct {
	UserID       string         `json:"user_id"`
	QuizID       string         `json:"quiz_id"`
	Category     string         `json:"category,omitempty"`
	Attempts     int64          `json:"attempts"`
	AverageScore float64        `json:"average_score"` // percentage
	HighestScore float64        `json:"highest_score"` // percentage
	TimeSpentSec int64          `json:"time_spent_sec"`
	Questions    []QuestionStat `json:"questions,omitempty"`
	LastUpdated  int64          `json:"last_updated"`
}

func (r *Record) questionStat(id string) *QuestionStat {
	for i := range r.Questions {
		if r.Questions[i].QuestionID == id {
			return &r.Questions[i]
		}
	}
	r.Questions = append(r.Questions, QuestionStat{QuestionID: id})
	return &r.Questions[len(r.Questions)-1]
}

// AppliedEvent is the audit row written when an attempt is folded in. Its
// attempt id doubles as the idempotence guard: a second fold of the same
// attempt is rejected by the store.
type AppliedEvent struct {
	AttemptID string
	Score     float64 // percentage at completion
}
