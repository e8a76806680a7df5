package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/assessor/internal/docparse"
	"github.com/pavelanni/assessor/internal/llm"
	"github.com/pavelanni/assessor/internal/model"
)

// Store is the persistence the grading service needs.
type Store interface {
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	ListUngraded(ctx context.Context, assignmentID string) ([]model.Submission, error)
	SaveGrading(ctx context.Context, submissionID string, result model.GradingResult) error
}

// Service grades stored submissions and saves the results.
type Service struct {
	grader  *Grader
	store   Store
	workers int
	log     *slog.Logger
}

// NewService creates a Service. workers bounds bulk grading concurrency.
func NewService(grader *Grader, store Store, logger *slog.Logger, workers int) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Service{grader: grader, store: store, workers: workers, log: logger}
}

// GradeSubmission grades one submission and persists the result. The
// assignment rubric wins over the caller's rubric.
func (s *Service) GradeSubmission(ctx context.Context, submissionID, rubric string) (model.GradingResult, error) {
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return model.GradingResult{}, err
	}
	asg, err := s.store.GetAssignment(ctx, sub.AssignmentID)
	if err != nil {
		return model.GradingResult{}, err
	}
	return s.gradeAndSave(ctx, sub, asg, rubric)
}

func (s *Service) gradeAndSave(ctx context.Context, sub model.Submission, asg model.Assignment, rubric string) (model.GradingResult, error) {
	result, err := s.grade(ctx, sub, asg, rubric)
	if err != nil {
		return model.GradingResult{}, err
	}
	if err := s.store.SaveGrading(ctx, sub.ID, result); err != nil {
		return model.GradingResult{}, fmt.Errorf("save grading for %s: %w", sub.ID, err)
	}
	s.log.Info("submission graded", "submission_id", sub.ID, "score", result.Score, "max_score", asg.MaxScore)
	return result, nil
}

// grade tries the attachments first and falls back to text extracted from
// them plus the submission text.
func (s *Service) grade(ctx context.Context, sub model.Submission, asg model.Assignment, rubric string) (model.GradingResult, error) {
	g := s.grader
	question := asg.Question()
	if strings.TrimSpace(asg.Rubric) != "" {
		rubric = asg.Rubric
	}

	if !sub.HasFiles() {
		if !sub.HasText() {
			return model.GradingResult{}, ErrUngradable
		}
		return g.GradeFromText(ctx, sub.Text, question, asg.MaxScore, rubric)
	}
	if asg.MaxScore <= 0 {
		return model.GradingResult{}, ErrInvalidMaxScore
	}

	files := g.fetchAll(ctx, sub.FileURLs)
	result, err := g.gradeFiles(ctx, files, question, asg.MaxScore, rubric)
	if err == nil {
		return result, nil
	}
	if errors.Is(err, llm.ErrConfiguration) || ctx.Err() != nil {
		return model.GradingResult{}, err
	}
	s.log.Warn("file grading failed, falling back to text", "submission_id", sub.ID, "error", err)

	text := fallbackText(sub.Text, files)
	if text == "" {
		return model.GradingResult{}, fmt.Errorf("%w: %v", ErrUngradable, err)
	}
	return g.GradeFromText(ctx, text, question, asg.MaxScore, rubric)
}

func fallbackText(submissionText string, files []File) string {
	var chunks []string
	if t := strings.TrimSpace(submissionText); t != "" {
		chunks = append(chunks, t)
	}
	for _, f := range files {
		if t := strings.TrimSpace(docparse.TextFromFile(f.ContentType, f.URL, f.Data)); t != "" {
			chunks = append(chunks, t)
		}
	}
	return strings.Join(chunks, "\n\n")
}

// BulkFailure is one submission that could not be graded.
type BulkFailure struct {
	SubmissionID string `json:"submission_id"`
	Error        string `json:"error"`
}

// BulkResult summarizes a GradeAssignment run.
type BulkResult struct {
	AssignmentID string        `json:"assignment_id"`
	Total        int           `json:"total"`
	Graded       int           `json:"graded"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Failures     []BulkFailure `json:"failures"`
}

// GradeAssignment grades every ungraded submission of an assignment. Empty
// submissions are skipped and failures are counted, never fatal.
func (s *Service) GradeAssignment(ctx context.Context, assignmentID, rubric string) (BulkResult, error) {
	asg, err := s.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return BulkResult{}, err
	}
	subs, err := s.store.ListUngraded(ctx, assignmentID)
	if err != nil {
		return BulkResult{}, fmt.Errorf("list ungraded submissions: %w", err)
	}

	res := BulkResult{AssignmentID: assignmentID, Total: len(subs), Failures: []BulkFailure{}}
	var mu sync.Mutex
	var grp errgroup.Group
	grp.SetLimit(s.workers)

	for _, sub := range subs {
		if !sub.HasText() && !sub.HasFiles() {
			res.Skipped++
			continue
		}
		grp.Go(func() error {
			_, err := s.gradeAndSave(ctx, sub, asg, rubric)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Warn("bulk grading failed", "submission_id", sub.ID, "error", err)
				res.Failed++
				res.Failures = append(res.Failures, BulkFailure{SubmissionID: sub.ID, Error: err.Error()})
				return nil
			}
			res.Graded++
			return nil
		})
	}
	_ = grp.Wait()

	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].SubmissionID < res.Failures[j].SubmissionID })
	s.log.Info("bulk grading finished", "assignment_id", assignmentID,
		"graded", res.Graded, "failed", res.Failed, "skipped", res.Skipped)
	return res, ctx.Err()
}
