package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

const defaultRejectReason = "Similar content detected with another submission."

// RecordDecision applies a plagiarism decision to the submissions and logs
// it. Ignore clears the submissions for grading. Reject sets them rejected
// with a zero score and notifies each student.
func (s *Store) RecordDecision(ctx context.Context, assignmentID string, submissionIDs []string, decision model.Decision, actorID, reason string) error {
	if !decision.Valid() {
		return fmt.Errorf("invalid decision %q", decision)
	}
	if len(submissionIDs) == 0 {
		return fmt.Errorf("no submissions given")
	}
	ids, err := json.Marshal(submissionIDs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(submissionIDs)), ",")
	args := make([]any, 0, len(submissionIDs)+4)
	now := time.Now()

	switch decision {
	case model.DecisionIgnore:
		args = append(args, model.PlagiarismCleared)
		for _, id := range submissionIDs {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET plagiarism_status = ? WHERE id IN (`+placeholders+`)`, args...,
		); err != nil {
			return err
		}

	case model.DecisionReject:
		feedback := strings.TrimSpace("Submission rejected due to plagiarism. " + reason)
		args = append(args, model.SubmissionRejected, model.PlagiarismRejected, feedback)
		for _, id := range submissionIDs {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET status = ?, plagiarism_status = ?, final_score = 0, feedback = ?
			 WHERE id IN (`+placeholders+`)`, args...,
		); err != nil {
			return err
		}

		shown := reason
		if shown == "" {
			shown = defaultRejectReason
		}
		idArgs := make([]any, len(submissionIDs))
		for i, id := range submissionIDs {
			idArgs[i] = id
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT student_id, assignment_id FROM submissions WHERE id IN (`+placeholders+`)`, idArgs...,
		)
		if err != nil {
			return err
		}
		var targets []model.Notification
		for rows.Next() {
			var studentID, asgID string
			if err := rows.Scan(&studentID, &asgID); err != nil {
				rows.Close()
				return err
			}
			targets = append(targets, model.Notification{
				UserID:  studentID,
				Type:    model.NotificationSubmissionRejected,
				Title:   "Assignment Submission Rejected",
				Message: "Your submission has been rejected due to plagiarism. Reason: " + shown,
				Link:    "/student/assignments/" + asgID,
			})
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, n := range targets {
			if err := insertNotification(ctx, tx, n, now); err != nil {
				return err
			}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO plagiarism_decisions (assignment_id, submission_ids, decision, actor_id, reason, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		assignmentID, string(ids), decision, actorID, reason, now,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDecisions returns the decisions recorded for an assignment, oldest first.
func (s *Store) ListDecisions(ctx context.Context, assignmentID string) ([]model.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assignment_id, submission_ids, decision, actor_id, reason, decided_at
		 FROM plagiarism_decisions WHERE assignment_id = ? ORDER BY id`, assignmentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.DecisionRecord
	for rows.Next() {
		var r model.DecisionRecord
		var ids string
		if err := rows.Scan(&r.ID, &r.AssignmentID, &ids, &r.Decision, &r.ActorID, &r.Reason, &r.DecidedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &r.SubmissionIDs); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SavePlagiarismScores stores, on each flagged submission, the highest
// similarity it reached in the report.
func (s *Store) SavePlagiarismScores(ctx context.Context, report model.PlagiarismReport) error {
	best := make(map[string]float64)
	for _, m := range report.FlaggedPairs {
		for _, id := range m.SubmissionIDs() {
			if m.SimilarityScore > best[id] {
				best[id] = m.SimilarityScore
			}
		}
	}
	if len(best) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for id, score := range best {
		if _, err := tx.ExecContext(ctx,
			`UPDATE submissions SET plagiarism_score = ? WHERE id = ?`, score, id,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// NotifyLecturer tells the assignment owner how many pairs were flagged.
func (s *Store) NotifyLecturer(ctx context.Context, assignmentID, lecturerID string, flagged int) error {
	return insertNotification(ctx, s.db, model.Notification{
		UserID:  lecturerID,
		Type:    model.NotificationPlagiarismDetected,
		Title:   "Plagiarism Detected in Submissions",
		Message: fmt.Sprintf("%d submission pair(s) have been flagged for potential plagiarism. Please review them.", flagged),
		Link:    "/lecturer/assignments/" + assignmentID + "/plagiarism",
	}, time.Now())
}
