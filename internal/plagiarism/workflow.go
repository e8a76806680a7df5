package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/pavelanni/assessor/internal/model"
)

var (
	ErrUnknownPair     = errors.New("unknown plagiarism pair")
	ErrInvalidDecision = errors.New("decision must be ignore or reject")
	ErrNotPending      = errors.New("pair is no longer pending")
	// ErrDecisionInFlight rejects a re-check while a decision is recording.
	ErrDecisionInFlight = errors.New("a plagiarism decision is still being recorded")
	// ErrSuperseded is returned by a workflow replaced by a newer check.
	ErrSuperseded = errors.New("plagiarism check was re-run")
)

// Phase tags a PairState.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseProcessing Phase = "processing"
	PhaseDecided    Phase = "decided"
)

// PairState is the adjudication state of one flagged pair.
//
//	Pending:    DraftReason, LastError
//	Processing: Decision (in flight), DraftReason
//	Decided:    Decision, Reason, DecidedAt
type PairState struct {
	Phase       Phase          `json:"phase"`
	Decision    model.Decision `json:"decision,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	DraftReason string         `json:"draft_reason,omitempty"`
	LastError   string         `json:"last_error,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty"`
}

// Recorder persists a decision on a pair of submissions.
type Recorder interface {
	RecordDecision(ctx context.Context, assignmentID string, submissionIDs []string, decision model.Decision, actorID, reason string) error
}

// Outcome is the result of a Decide call. Applied is false when the pair
// was already decided or in flight and nothing was recorded.
type Outcome struct {
	Applied bool      `json:"applied"`
	State   PairState `json:"state"`
}

// PairView is a flagged pair with its tier and current state.
type PairView struct {
	Key      string                `json:"key"`
	Match    model.PlagiarismMatch `json:"match"`
	Severity Severity              `json:"severity"`
	State    PairState             `json:"state"`
}

// Workflow adjudicates the pairs of one report. Each pair moves
// pending -> processing -> decided on its own; a failed record returns it
// to pending without touching the others.
type Workflow struct {
	mu       sync.Mutex
	report   model.PlagiarismReport
	order    []string
	matches  map[string]model.PlagiarismMatch
	states   map[string]PairState
	recorder Recorder
	now      func() time.Time
	retired  bool
}

// NewWorkflow starts every flagged pair of report in PhasePending.
func NewWorkflow(report model.PlagiarismReport, recorder Recorder) *Workflow {
	w := &Workflow{
		report:   report,
		matches:  make(map[string]model.PlagiarismMatch),
		states:   make(map[string]PairState),
		recorder: recorder,
		now:      time.Now,
	}
	for _, m := range report.FlaggedPairs {
		key := m.PairKey()
		if _, dup := w.matches[key]; dup {
			continue
		}
		w.order = append(w.order, key)
		w.matches[key] = m
		w.states[key] = PairState{Phase: PhasePending}
	}
	return w
}

// Restore marks pairs covered by earlier decisions as decided.
func (w *Workflow) Restore(records []model.DecisionRecord) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, rec := range records {
		if len(rec.SubmissionIDs) != 2 {
			continue
		}
		for _, key := range []string{
			rec.SubmissionIDs[0] + "-" + rec.SubmissionIDs[1],
			rec.SubmissionIDs[1] + "-" + rec.SubmissionIDs[0],
		} {
			st, ok := w.states[key]
			if !ok || st.Phase == PhaseDecided {
				continue
			}
			at := rec.DecidedAt
			w.states[key] = PairState{Phase: PhaseDecided, Decision: rec.Decision, Reason: rec.Reason, DecidedAt: &at}
			n++
		}
	}
	return n
}

// retire stops w from taking new decisions and returns a copy of its
// states. It fails while any pair is in flight.
func (w *Workflow) retire() (map[string]PairState, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, st := range w.states {
		if st.Phase == PhaseProcessing {
			return nil, fmt.Errorf("%w: %s", ErrDecisionInFlight, key)
		}
	}
	w.retired = true
	return maps.Clone(w.states), nil
}

func (w *Workflow) reinstate() {
	w.mu.Lock()
	w.retired = false
	w.mu.Unlock()
}

// carryOver copies decided states and draft reasons from an earlier
// workflow of the same assignment onto pairs still pending in w.
func (w *Workflow) carryOver(prev map[string]PairState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key, old := range prev {
		st, ok := w.states[key]
		if !ok || st.Phase != PhasePending {
			continue
		}
		switch old.Phase {
		case PhaseDecided:
			w.states[key] = old
		case PhasePending:
			st.DraftReason = old.DraftReason
			w.states[key] = st
		}
	}
}

// Report returns the report the workflow was built from.
func (w *Workflow) Report() model.PlagiarismReport {
	return w.report
}

// Pairs returns every pair in report order.
func (w *Workflow) Pairs() []PairView {
	w.mu.Lock()
	defer w.mu.Unlock()
	views := make([]PairView, 0, len(w.order))
	for _, key := range w.order {
		m := w.matches[key]
		views = append(views, PairView{
			Key:      key,
			Match:    m,
			Severity: SeverityOf(m.SimilarityScore),
			State:    w.states[key],
		})
	}
	return views
}

// State returns the state of one pair.
func (w *Workflow) State(key string) (PairState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.states[key]
	return st, ok
}

// SetReason stores a draft rejection reason on a pending pair.
func (w *Workflow) SetReason(key, reason string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.states[key]
	if !ok {
		return ErrUnknownPair
	}
	if w.retired {
		return ErrSuperseded
	}
	if st.Phase != PhasePending {
		return ErrNotPending
	}
	st.DraftReason = reason
	w.states[key] = st
	return nil
}

// Decide records decision for a pending pair. The draft reason is sent
// only with a reject. Deciding a pair that is decided or in flight is a
// no-op.
func (w *Workflow) Decide(ctx context.Context, key string, decision model.Decision, actorID string) (Outcome, error) {
	if !decision.Valid() {
		return Outcome{}, ErrInvalidDecision
	}

	w.mu.Lock()
	st, ok := w.states[key]
	if !ok {
		w.mu.Unlock()
		return Outcome{}, ErrUnknownPair
	}
	if st.Phase != PhasePending {
		w.mu.Unlock()
		return Outcome{State: st}, nil
	}
	if w.retired {
		w.mu.Unlock()
		return Outcome{State: st}, ErrSuperseded
	}
	draft := st.DraftReason
	w.states[key] = PairState{Phase: PhaseProcessing, Decision: decision, DraftReason: draft}
	match := w.matches[key]
	w.mu.Unlock()

	var reason string
	if decision == model.DecisionReject {
		reason = draft
	}
	err := w.recorder.RecordDecision(ctx, w.report.AssignmentID, match.SubmissionIDs(), decision, actorID, reason)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		st = PairState{Phase: PhasePending, DraftReason: draft, LastError: err.Error()}
		w.states[key] = st
		return Outcome{State: st}, fmt.Errorf("record %s decision for %s: %w", decision, key, err)
	}
	at := w.now()
	st = PairState{Phase: PhaseDecided, Decision: decision, Reason: reason, DecidedAt: &at}
	w.states[key] = st
	return Outcome{Applied: true, State: st}, nil
}

// Counts returns how many pairs are in each phase.
func (w *Workflow) Counts() map[Phase]int {
	w.mu.Lock()
	defer w.mu.Unlock()
	counts := map[Phase]int{PhasePending: 0, PhaseProcessing: 0, PhaseDecided: 0}
	for _, st := range w.states {
		counts[st.Phase]++
	}
	return counts
}
