package plagiarism

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pavelanni/assessor/internal/model"
)

// Store is the persistence a Checker needs.
type Store interface {
	Recorder
	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	ListSubmitted(ctx context.Context, assignmentID string) ([]model.Submission, error)
	SavePlagiarismScores(ctx context.Context, report model.PlagiarismReport) error
	NotifyLecturer(ctx context.Context, assignmentID, lecturerID string, flagged int) error
	ListDecisions(ctx context.Context, assignmentID string) ([]model.DecisionRecord, error)
}

// Observer receives every recorded decision.
type Observer interface {
	ObserveDecision(decision string)
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithObserver reports recorded decisions to o.
func WithObserver(o Observer) CheckerOption {
	return func(c *Checker) { c.observer = o }
}

type observedRecorder struct {
	Recorder
	observer Observer
}

func (r observedRecorder) RecordDecision(ctx context.Context, assignmentID string, submissionIDs []string, decision model.Decision, actorID, reason string) error {
	if err := r.Recorder.RecordDecision(ctx, assignmentID, submissionIDs, decision, actorID, reason); err != nil {
		return err
	}
	r.observer.ObserveDecision(string(decision))
	return nil
}

// Checker runs detection over stored submissions and keeps one workflow
// per assignment.
type Checker struct {
	store     Store
	threshold float64
	log       *slog.Logger
	observer  Observer

	checkMu   sync.Mutex
	mu        sync.Mutex
	workflows map[string]*Workflow
}

// NewChecker creates a Checker. A non-positive threshold uses DefaultThreshold.
func NewChecker(store Store, threshold float64, logger *slog.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := &Checker{store: store, threshold: threshold, log: logger, workflows: make(map[string]*Workflow)}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check detects similar submissions, saves their scores and notifies the
// lecturer about newly flagged pairs. The new workflow replaces any earlier
// one for the assignment: decided pairs carry over and stored decisions are
// restored. A re-check is refused while a decision is being recorded.
func (c *Checker) Check(ctx context.Context, assignmentID string) (*Workflow, error) {
	c.checkMu.Lock()
	defer c.checkMu.Unlock()

	asg, err := c.store.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	prev, hasPrev := c.Workflow(assignmentID)
	var prevStates map[string]PairState
	if hasPrev {
		if prevStates, err = prev.retire(); err != nil {
			return nil, err
		}
	}
	wf, restored, err := c.run(ctx, assignmentID, prevStates)
	if err != nil {
		if hasPrev {
			prev.reinstate()
		}
		return nil, err
	}
	report := wf.Report()

	fresh := 0
	for _, p := range wf.Pairs() {
		if p.State.Phase != PhasePending {
			continue
		}
		if old, seen := prevStates[p.Key]; seen && old.Phase == PhasePending {
			continue
		}
		fresh++
	}
	if fresh > 0 && asg.CreatedBy != "" {
		if err := c.store.NotifyLecturer(ctx, assignmentID, asg.CreatedBy, fresh); err != nil {
			c.log.Warn("lecturer notification failed", "assignment_id", assignmentID, "error", err)
		}
	}

	c.mu.Lock()
	c.workflows[assignmentID] = wf
	c.mu.Unlock()

	c.log.Info("plagiarism check finished", "assignment_id", assignmentID,
		"submissions", report.TotalSubmissions, "flagged", len(report.FlaggedPairs),
		"restored", restored, "newly_flagged", fresh)
	return wf, nil
}

func (c *Checker) run(ctx context.Context, assignmentID string, prev map[string]PairState) (*Workflow, int, error) {
	subs, err := c.store.ListSubmitted(ctx, assignmentID)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	report := Detect(assignmentID, subs, c.threshold)
	if err := c.store.SavePlagiarismScores(ctx, report); err != nil {
		return nil, 0, fmt.Errorf("save plagiarism scores: %w", err)
	}

	var rec Recorder = c.store
	if c.observer != nil {
		rec = observedRecorder{Recorder: c.store, observer: c.observer}
	}
	wf := NewWorkflow(report, rec)
	wf.carryOver(prev)
	records, err := c.store.ListDecisions(ctx, assignmentID)
	if err != nil {
		return nil, 0, fmt.Errorf("list decisions: %w", err)
	}
	return wf, wf.Restore(records), nil
}

// Workflow returns the workflow of the last check of an assignment.
func (c *Checker) Workflow(assignmentID string) (*Workflow, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	wf, ok := c.workflows[assignmentID]
	return wf, ok
}
