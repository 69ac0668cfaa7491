package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/quizforge/quizforge/internal/db"
)

// SQLStore persists analytics rows. Each Apply runs in one transaction:
// the analytics_applied insert is the idempotence guard (primary key on
// attempt_id) and, on postgres, the record row is locked FOR UPDATE so
// concurrent folds for the same (user, quiz) serialize. sqlite has a single
// writer, which gives the same guarantee for free.
type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
}

func NewSQLStore(dbh *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: dbh, driver: driver}
}

func (s *SQLStore) Apply(ctx context.Context, key Key, ev AppliedEvent, fn func(*Record)) (bool, error) {
	var applied bool
	err := db.Retry(ctx, func() error {
		applied = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_applied (attempt_id, quiz_id, user_id, score, created_at)
			 VALUES ($1,$2,$3,$4,$5) ON CONFLICT (attempt_id) DO NOTHING`,
			ev.AttemptID, key.QuizID, key.UserID, ev.Score, time.Now().Unix())
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil // already applied; leave the record untouched
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics (user_id, quiz_id, category, attempts, average_score, highest_score,
			 time_spent_sec, question_stats_json, last_updated)
			 VALUES ($1,$2,'',0,0,0,0,'[]',0)
			 ON CONFLICT (user_id, quiz_id) DO NOTHING`, key.UserID, key.QuizID); err != nil {
			return err
		}

		sel := `SELECT category, attempts, average_score, highest_score, time_spent_sec,
			question_stats_json, last_updated FROM analytics WHERE user_id=$1 AND quiz_id=$2`
		if s.driver == "postgres" {
			sel += " FOR UPDATE"
		}
		rec := Record{UserID: key.UserID, QuizID: key.QuizID}
		var qstats string
		if err := tx.QueryRowContext(ctx, sel, key.UserID, key.QuizID).Scan(
			&rec.Category, &rec.Attempts, &rec.AverageScore, &rec.HighestScore,
			&rec.TimeSpentSec, &qstats, &rec.LastUpdated); err != nil {
			return err
		}
		_ = json.Unmarshal([]byte(qstats), &rec.Questions)

		fn(&rec)

		buf, err := json.Marshal(rec.Questions)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE analytics SET category=$1, attempts=$2, average_score=$3, highest_score=$4,
			 time_spent_sec=$5, question_stats_json=$6, last_updated=$7
			 WHERE user_id=$8 AND quiz_id=$9`,
			rec.Category, rec.Attempts, rec.AverageScore, rec.HighestScore,
			rec.TimeSpentSec, string(buf), rec.LastUpdated, key.UserID, key.QuizID); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (s *SQLStore) Get(ctx context.Context, key Key) (Record, error) {
	var rec Record
	err := db.Retry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT user_id, quiz_id, category, attempts, average_score,
			highest_score, time_spent_sec, question_stats_json, last_updated
			FROM analytics WHERE user_id=$1 AND quiz_id=$2`, key.UserID, key.QuizID)
		return scanRecord(row, &rec)
	})
	return rec, err
}

func (s *SQLStore) ListByUser(ctx context.Context, userID string) ([]Record, error) {
	return s.list(ctx, `WHERE user_id=$1`, userID)
}

func (s *SQLStore) ListByQuiz(ctx context.Context, quizID string) ([]Record, error) {
	return s.list(ctx, `WHERE quiz_id=$1`, quizID)
}

func (s *SQLStore) list(ctx context.Context, where string, arg any) ([]Record, error) {
	var out []Record
	err := db.Retry(ctx, func() error {
		rows, err := s.db.QueryContext(ctx, `SELECT user_id, quiz_id, category, attempts, average_score,
			highest_score, time_spent_sec, question_stats_json, last_updated
			FROM analytics `+where+` ORDER BY last_updated DESC`, arg)
		if err != nil {
			return err
		}
		defer rows.Close()
		out = []Record{}
		for rows.Next() {
			var rec Record
			if err := scanRecord(rows, &rec); err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(row rowScanner, rec *Record) error {
	var qstats string
	if err := row.Scan(&rec.UserID, &rec.QuizID, &rec.Category, &rec.Attempts, &rec.AverageScore,
		&rec.HighestScore, &rec.TimeSpentSec, &qstats, &rec.LastUpdated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRecordNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(qstats), &rec.Questions)
}
