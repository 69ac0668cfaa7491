package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/quizforge/quizforge/internal/db"
)

// SQLStore persists quizzes and attempts through database/sql. Question and
// answer sequences live in JSON columns, mirroring how the rest of the row
// is only ever read and written whole.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

func (s *SQLStore) PutQuiz(ctx context.Context, z Quiz) error {
	qj, err := json.Marshal(z.Questions)
	if err != nil {
		return err
	}
	tags, _ := json.Marshal(z.Tags)
	collab, _ := json.Marshal(z.Collaborators)
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO quizzes
			(id,title,description,category,tags_json,owner_id,collaborators_json,questions_json,
			 time_limit_min,randomize_q,randomize_o,passing_score,attempts_allowed,status,created_at,updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
			ON CONFLICT (id) DO UPDATE SET
			 title=EXCLUDED.title, description=EXCLUDED.description, category=EXCLUDED.category,
			 tags_json=EXCLUDED.tags_json, collaborators_json=EXCLUDED.collaborators_json,
			 questions_json=EXCLUDED.questions_json, time_limit_min=EXCLUDED.time_limit_min,
			 randomize_q=EXCLUDED.randomize_q, randomize_o=EXCLUDED.randomize_o,
			 passing_score=EXCLUDED.passing_score, attempts_allowed=EXCLUDED.attempts_allowed,
			 status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
			z.ID, z.Title, z.Description, z.Category, string(tags), z.OwnerID, string(collab), string(qj),
			z.Settings.TimeLimitMin, z.Settings.RandomizeQuestions, z.Settings.RandomizeOptions,
			z.Settings.PassingScore, z.Settings.AttemptsAllowed, z.Status, z.CreatedAt, z.UpdatedAt)
		return err
	})
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	var z Quiz
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT id,title,description,category,tags_json,owner_id,
			collaborators_json,questions_json,time_limit_min,randomize_q,randomize_o,passing_score,
			attempts_allowed,status,created_at,updated_at FROM quizzes WHERE id=$1`, id)
		var tags, collab, qjson string
		if err := row.Scan(&z.ID, &z.Title, &z.Description, &z.Category, &tags, &z.OwnerID,
			&collab, &qjson, &z.Settings.TimeLimitMin, &z.Settings.RandomizeQuestions,
			&z.Settings.RandomizeOptions, &z.Settings.PassingScore, &z.Settings.AttemptsAllowed,
			&z.Status, &z.CreatedAt, &z.UpdatedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrQuizNotFound
			}
			return err
		}
		if err := json.Unmarshal([]byte(qjson), &z.Questions); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(tags), &z.Tags)
		_ = json.Unmarshal([]byte(collab), &z.Collaborators)
		return nil
	})
	return z, err
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	return s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrQuizNotFound
		}
		return nil
	})
}

func (s *SQLStore) ListQuizzes(ctx context.Context, opts ListOpts) ([]Summary, error) {
	q := `SELECT id,title,category,status,owner_id,questions_json,created_at FROM quizzes WHERE 1=1`
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		q += " AND " + strings.Replace(cond, "?", placeholder(len(args)), 1)
	}
	if opts.Category != "" {
		add("category=?", opts.Category)
	}
	if opts.Status != "" {
		add("status=?", opts.Status)
	}
	if opts.OwnerID != "" {
		add("owner_id=?", opts.OwnerID)
	}
	if opts.Search != "" {
		add("lower(title) LIKE ?", "%"+strings.ToLower(opts.Search)+"%")
	}
	q += " ORDER BY created_at DESC, id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += " LIMIT " + placeholder(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += " OFFSET " + placeholder(len(args))
	}

	var out []Summary
	err := s.retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = []Summary{}
		for rows.Next() {
			var sm Summary
			var qjson string
			if err := rows.Scan(&sm.ID, &sm.Title, &sm.Category, &sm.Status, &sm.OwnerID, &qjson, &sm.CreatedAt); err != nil {
				return err
			}
			var qs []Question
			if err := json.Unmarshal([]byte(qjson), &qs); err == nil {
				sm.NumQuestions = len(qs)
				for _, qq := range qs {
					sm.MaxPoints += qq.Points
				}
			}
			out = append(out, sm)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) error {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `INSERT INTO attempts
			(id,quiz_id,user_id,status,answers_json,score,percentage,started_at,ended_at,time_spent_sec,grading_complete)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			a.ID, a.QuizID, a.UserID, a.Status, string(aj), a.Score, a.Percentage,
			a.StartedAt, a.EndedAt, a.TimeSpentSec, a.GradingComplete)
		return err
	})
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var a Attempt
	err := s.retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT id,quiz_id,user_id,status,answers_json,score,percentage,
			started_at,ended_at,time_spent_sec,grading_complete FROM attempts WHERE id=$1`, id)
		var aj string
		if err := row.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Status, &aj, &a.Score, &a.Percentage,
			&a.StartedAt, &a.EndedAt, &a.TimeSpentSec, &a.GradingComplete); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrAttemptNotFound
			}
			return err
		}
		return json.Unmarshal([]byte(aj), &a.Answers)
	})
	return a, err
}

func (s *SQLStore) UpdateAttempt(ctx context.Context, a Attempt, expect string) error {
	aj, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	return s.retry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `UPDATE attempts SET status=$1, answers_json=$2, score=$3,
			percentage=$4, ended_at=$5, time_spent_sec=$6, grading_complete=$7
			WHERE id=$8 AND status=$9`,
			a.Status, string(aj), a.Score, a.Percentage, a.EndedAt, a.TimeSpentSec, a.GradingComplete,
			a.ID, expect)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Distinguish a missing row from a lost conditional write.
			var cur string
			if err := s.db.QueryRowContext(ctx, `SELECT status FROM attempts WHERE id=$1`, a.ID).Scan(&cur); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrAttemptNotFound
				}
				return err
			}
			return ErrAlreadyCompleted
		}
		return nil
	})
}

func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	q := `SELECT id,quiz_id,user_id,status,answers_json,score,percentage,started_at,ended_at,
		time_spent_sec,grading_complete FROM attempts WHERE 1=1`
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		q += " AND " + strings.Replace(cond, "?", placeholder(len(args)), 1)
	}
	if opts.QuizID != "" {
		add("quiz_id=?", opts.QuizID)
	}
	if opts.UserID != "" {
		add("user_id=?", opts.UserID)
	}
	if opts.Status != "" {
		add("status=?", opts.Status)
	}
	q += " ORDER BY started_at DESC, id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += " LIMIT " + placeholder(len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		q += " OFFSET " + placeholder(len(args))
	}

	var out []Attempt
	err := s.retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = []Attempt{}
		for rows.Next() {
			var a Attempt
			var aj string
			if err := rows.Scan(&a.ID, &a.QuizID, &a.UserID, &a.Status, &aj, &a.Score, &a.Percentage,
				&a.StartedAt, &a.EndedAt, &a.TimeSpentSec, &a.GradingComplete); err != nil {
				return err
			}
			_ = json.Unmarshal([]byte(aj), &a.Answers)
			out = append(out, a)
		}
		return rows.Err()
	})
	return out, err
}

func (s *SQLStore) CountCompleted(ctx context.Context, userID, quizID string) (int, error) {
	var n int
	err := s.retry(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT COALESCE(completed,0) FROM attempt_counters WHERE user_id=$1 AND quiz_id=$2`,
			userID, quizID).Scan(&n)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// CompleteIfBelow is the conditional write that serializes the
// attempts-allowed ceiling: the guard lives in the UPDATE's WHERE clause,
// so two racing submissions can never both pass a stale count.
func (s *SQLStore) CompleteIfBelow(ctx context.Context, userID, quizID string, limit int) (bool, error) {
	var ok bool
	err := s.retry(ctx, func() error {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO attempt_counters (user_id, quiz_id, completed) VALUES ($1,$2,0)
			 ON CONFLICT (user_id, quiz_id) DO NOTHING`, userID, quizID); err != nil {
			return err
		}
		res, err := s.db.ExecContext(ctx,
			`UPDATE attempt_counters SET completed = completed + 1
			 WHERE user_id=$1 AND quiz_id=$2 AND completed < $3`, userID, quizID, limit)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		ok = n > 0
		return err
	})
	return ok, err
}

func (s *SQLStore) ReleaseCompleted(ctx context.Context, userID, quizID string) error {
	return s.retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE attempt_counters SET completed = completed - 1
			 WHERE user_id=$1 AND quiz_id=$2 AND completed > 0`, userID, quizID)
		return err
	})
}

func (s *SQLStore) retry(ctx context.Context, fn func() error) error {
	return db.Retry(ctx, fn)
}

func placeholder(n int) string {
	// Both pgx and modernc sqlite accept $N placeholders.
	return "$" + strconv.Itoa(n)
}
