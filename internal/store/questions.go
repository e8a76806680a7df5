package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// ImportQuestions appends reviewed questions to a test in one transaction
// and returns their row IDs in order.
func (s *Store) ImportQuestions(ctx context.Context, testID string, questions []model.ExtractedQuestion) ([]int64, error) {
	if testID == "" {
		return nil, fmt.Errorf("test id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM questions WHERE test_id = ?`, testID,
	).Scan(&next); err != nil {
		return nil, err
	}

	now := time.Now()
	ids := make([]int64, 0, len(questions))
	for _, q := range questions {
		next++
		options, err := json.Marshal(nonNil(q.Options))
		if err != nil {
			return nil, err
		}
		var answer sql.NullString
		if q.CorrectAnswer != nil {
			answer = sql.NullString{String: *q.CorrectAnswer, Valid: true}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO questions (test_id, position, question_text, question_type, options, correct_answer, explanation, marks, has_image, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			testID, next, q.QuestionText, q.QuestionType, string(options), answer, q.Explanation, q.Marks, q.HasImage, now,
		)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, tx.Commit()
}

// ListQuestions returns the questions of a test in position order.
func (s *Store) ListQuestions(ctx context.Context, testID string) ([]model.StoredQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, test_id, position, question_text, question_type, options, correct_answer, explanation, marks, has_image
		 FROM questions WHERE test_id = ? ORDER BY position`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var questions []model.StoredQuestion
	for rows.Next() {
		var q model.StoredQuestion
		var options string
		var answer sql.NullString
		if err := rows.Scan(&q.ID, &q.TestID, &q.Position, &q.QuestionText, &q.QuestionType,
			&options, &answer, &q.Explanation, &q.Marks, &q.HasImage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, err
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if answer.Valid {
			q.CorrectAnswer = model.StringPtr(answer.String)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
