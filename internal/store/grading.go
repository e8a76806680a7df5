package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// SaveGrading stores a model grading and marks the submission graded with
// its final score and feedback. Regrading replaces the earlier result.
func (s *Store) SaveGrading(ctx context.Context, submissionID string, r model.GradingResult) error {
	strengths, err := json.Marshal(nonNil(r.Strengths))
	if err != nil {
		return err
	}
	improvements, err := json.Marshal(nonNil(r.Improvements))
	if err != nil {
		return err
	}
	breakdown, err := json.Marshal(r.GradingBreakdown)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	res, err := tx.ExecContext(ctx,
		`UPDATE submissions SET status = ?, final_score = ?, feedback = ?, graded_at = ? WHERE id = ?`,
		model.SubmissionGraded, r.Score, r.Feedback, now, submissionID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("submission %s: %w", submissionID, ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO gradings (submission_id, score, percentage, feedback, strengths, improvements, breakdown, graded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(submission_id) DO UPDATE SET
		   score = excluded.score, percentage = excluded.percentage, feedback = excluded.feedback,
		   strengths = excluded.strengths, improvements = excluded.improvements,
		   breakdown = excluded.breakdown, graded_at = excluded.graded_at`,
		submissionID, r.Score, r.Percentage, r.Feedback, string(strengths), string(improvements), string(breakdown), now,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// GetGrading returns the stored model grading of a submission, or nil.
func (s *Store) GetGrading(ctx context.Context, submissionID string) (*model.GradingResult, error) {
	var r model.GradingResult
	var strengths, improvements, breakdown string
	err := s.db.QueryRowContext(ctx,
		`SELECT score, percentage, feedback, strengths, improvements, breakdown FROM gradings WHERE submission_id = ?`,
		submissionID,
	).Scan(&r.Score, &r.Percentage, &r.Feedback, &strengths, &improvements, &breakdown)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(strengths), &r.Strengths); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(improvements), &r.Improvements); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(breakdown), &r.GradingBreakdown); err != nil {
		return nil, err
	}
	return &r, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
