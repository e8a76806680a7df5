package store

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

// ExportAssignment builds the export of an assignment: every submission
// with its stored AI grading, plus the plagiarism decisions taken.
func (s *Store) ExportAssignment(ctx context.Context, assignmentID string) (model.AssignmentExport, error) {
	asg, err := s.GetAssignment(ctx, assignmentID)
	if err != nil {
		return model.AssignmentExport{}, err
	}
	subs, err := s.ListSubmissions(ctx, assignmentID)
	if err != nil {
		return model.AssignmentExport{}, fmt.Errorf("list submissions: %w", err)
	}
	variant, err := s.GetMetadata(ctx, MetaPromptVariant)
	if err != nil {
		return model.AssignmentExport{}, fmt.Errorf("get prompt variant: %w", err)
	}
	decisions, err := s.ListDecisions(ctx, assignmentID)
	if err != nil {
		return model.AssignmentExport{}, fmt.Errorf("list decisions: %w", err)
	}
	if decisions == nil {
		decisions = []model.DecisionRecord{}
	}

	results := make([]model.SubmissionResult, 0, len(subs))
	for _, sub := range subs {
		g, err := s.GetGrading(ctx, sub.ID)
		if err != nil {
			return model.AssignmentExport{}, fmt.Errorf("get grading %s: %w", sub.ID, err)
		}
		results = append(results, model.SubmissionResult{
			SubmissionID:     sub.ID,
			StudentID:        sub.StudentID,
			StudentName:      sub.StudentName,
			Status:           sub.Status,
			PlagiarismStatus: sub.PlagiarismStatus,
			FinalScore:       sub.FinalScore,
			Feedback:         sub.Feedback,
			Grading:          g,
			SubmittedAt:      sub.SubmittedAt,
			GradedAt:         sub.GradedAt,
		})
	}

	return model.AssignmentExport{
		AssignmentID:  asg.ID,
		Title:         asg.Title,
		MaxScore:      asg.MaxScore,
		PromptVariant: variant,
		ExportedAt:    time.Now().UTC(),
		Results:       results,
		Decisions:     decisions,
	}, nil
}
