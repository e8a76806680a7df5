// Package review holds extracted questions while a human edits them
// before import.
package review

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/extract"
	"github.com/pavelanni/assessor/internal/model"
)

var (
	ErrOutOfRange       = errors.New("question index out of range")
	ErrAnotherEditing   = errors.New("another question is being edited")
	ErrNotEditing       = errors.New("no question is being edited")
	ErrEditInProgress   = errors.New("save or cancel the open edit first")
	ErrNotMultiChoice   = errors.New("options can only be edited on multiple choice questions")
	ErrOptionRange      = errors.New("option index out of range")
	ErrEmptyImport      = errors.New("no questions to import")
	ErrClosed           = errors.New("review session is closed")
	ErrCommitInProgress = errors.New("import already in progress")
)

// ValidationError carries the issues that blocked a save or import.
type ValidationError struct {
	Issues []extract.Issue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		msgs[i] = is.String()
	}
	return "invalid questions: " + strings.Join(msgs, "; ")
}

// State is the per-question review state.
type State string

const (
	StateViewing State = "viewing"
	StateEditing State = "editing"
)

// Importer persists the final question list.
type Importer interface {
	Import(ctx context.Context, questions []model.ExtractedQuestion) error
}

// ImporterFunc adapts a function to Importer.
type ImporterFunc func(ctx context.Context, questions []model.ExtractedQuestion) error

func (f ImporterFunc) Import(ctx context.Context, questions []model.ExtractedQuestion) error {
	return f(ctx, questions)
}

type item struct {
	id       string
	question model.ExtractedQuestion
}

// ItemView is a read-only snapshot of one question.
type ItemView struct {
	ID       string                  `json:"id"`
	Index    int                     `json:"index"`
	State    State                   `json:"state"`
	Label    string                  `json:"type_label"`
	Question model.ExtractedQuestion `json:"question"`
}

// Session is a single-active-editor state machine over extracted questions.
// At most one question is in StateEditing; its pending changes live in a
// draft until SaveEdit.
type Session struct {
	mu         sync.Mutex
	id         string
	items      []item
	editing    int // -1 when nothing is being edited
	draft      model.ExtractedQuestion
	dirty      map[string]struct{}
	committing bool
	closed     bool
}

// NewSession starts a review over a copy of questions.
func NewSession(questions []model.ExtractedQuestion) *Session {
	s := &Session{
		id:      uuid.NewString(),
		editing: -1,
		dirty:   make(map[string]struct{}),
	}
	for _, q := range questions {
		s.items = append(s.items, item{id: uuid.NewString(), question: q.Clone()})
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Len returns the number of questions left.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Items returns a snapshot of every question with its state.
func (s *Session) Items() []ItemView {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]ItemView, len(s.items))
	for i, it := range s.items {
		state := StateViewing
		if i == s.editing {
			state = StateEditing
		}
		views[i] = ItemView{
			ID:       it.id,
			Index:    i,
			State:    state,
			Label:    it.question.QuestionType.Label(),
			Question: it.question.Clone(),
		}
	}
	return views
}

// Questions returns a copy of the working sequence with all saved edits.
func (s *Session) Questions() []model.ExtractedQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionsLocked()
}

func (s *Session) questionsLocked() []model.ExtractedQuestion {
	out := make([]model.ExtractedQuestion, len(s.items))
	for i, it := range s.items {
		out[i] = it.question.Clone()
	}
	return out
}

// mutableLocked reports why the session cannot change, if it cannot.
// The sequence is frozen while an import is running.
func (s *Session) mutableLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.committing:
		return ErrCommitInProgress
	}
	return nil
}

// Edit opens question i for editing. Re-opening the item already under
// edit is a no-op.
func (s *Session) Edit(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if i < 0 || i >= len(s.items) {
		return ErrOutOfRange
	}
	if s.editing == i {
		return nil
	}
	if s.editing >= 0 {
		return ErrAnotherEditing
	}
	s.editing = i
	s.draft = s.items[i].question.Clone()
	return nil
}

// Editing returns the index under edit, or -1.
func (s *Session) Editing() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

// Draft returns a copy of the pending edit.
func (s *Session) Draft() (model.ExtractedQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing < 0 {
		return model.ExtractedQuestion{}, ErrNotEditing
	}
	return s.draft.Clone(), nil
}

// UpdateDraft applies fn to the pending edit.
func (s *Session) UpdateDraft(fn func(q *model.ExtractedQuestion)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if s.editing < 0 {
		return ErrNotEditing
	}
	fn(&s.draft)
	return nil
}

// SetDraft replaces the pending edit.
func (s *Session) SetDraft(q model.ExtractedQuestion) error {
	return s.UpdateDraft(func(d *model.ExtractedQuestion) { *d = q.Clone() })
}

// AddOption appends an empty option to a multiple choice draft.
func (s *Session) AddOption() error {
	return s.editOptions(func(q *model.ExtractedQuestion) error {
		q.Options = append(q.Options, "")
		return nil
	})
}

// UpdateOption sets option i of a multiple choice draft.
func (s *Session) UpdateOption(i int, value string) error {
	return s.editOptions(func(q *model.ExtractedQuestion) error {
		if i < 0 || i >= len(q.Options) {
			return ErrOptionRange
		}
		q.Options[i] = value
		return nil
	})
}

// RemoveOption deletes option i of a multiple choice draft. An answer
// letter pointing past the removed option shifts with it; an answer
// naming the removed option is cleared.
func (s *Session) RemoveOption(i int) error {
	return s.editOptions(func(q *model.ExtractedQuestion) error {
		if i < 0 || i >= len(q.Options) {
			return ErrOptionRange
		}
		answer := q.CorrectLetterIndex()
		q.Options = append(q.Options[:i], q.Options[i+1:]...)
		switch {
		case answer == i:
			q.CorrectAnswer = nil
		case answer > i:
			q.CorrectAnswer = model.StringPtr(model.OptionLetter(answer - 1))
		}
		return nil
	})
}

func (s *Session) editOptions(fn func(q *model.ExtractedQuestion) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if s.editing < 0 {
		return ErrNotEditing
	}
	if s.draft.QuestionType != model.QuestionMCQ {
		return ErrNotMultiChoice
	}
	return fn(&s.draft)
}

// SaveEdit validates the draft and writes it back. On failure the item
// stays in StateEditing and the error is a *ValidationError.
func (s *Session) SaveEdit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return err
	}
	if s.editing < 0 {
		return ErrNotEditing
	}

	draft := s.draft.Clone()
	if draft.QuestionType == model.QuestionEssay {
		draft.Options = nil
		draft.CorrectAnswer = nil
	}
	if issues := extract.ValidateQuestion(s.editing, draft); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}

	it := &s.items[s.editing]
	it.question = draft
	s.dirty[it.id] = struct{}{}
	s.editing = -1
	s.draft = model.ExtractedQuestion{}
	return nil
}

// CancelEdit discards the draft. It is a no-op when nothing is open.
func (s *Session) CancelEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.editing = -1
	s.draft = model.ExtractedQuestion{}
}

// Delete removes question i. It reports false, and changes nothing, when
// i is out of range. Deleting the item under edit discards its draft.
func (s *Session) Delete(i int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mutableLocked(); err != nil {
		return false, err
	}
	if i < 0 || i >= len(s.items) {
		return false, nil
	}

	s.dirty[s.items[i].id] = struct{}{}
	s.items = append(s.items[:i], s.items[i+1:]...)
	switch {
	case s.editing == i:
		s.editing = -1
		s.draft = model.ExtractedQuestion{}
	case s.editing > i:
		s.editing--
	}
	return true, nil
}

// Dirty returns the ids of questions edited or deleted since the session
// started, sorted.
func (s *Session) Dirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Closed reports whether the session was committed or discarded.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Commit validates the working sequence and hands it to importer. The
// session closes only when the import succeeds.
func (s *Session) Commit(ctx context.Context, importer Importer) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return ErrClosed
	case s.committing:
		s.mu.Unlock()
		return ErrCommitInProgress
	case s.editing >= 0:
		s.mu.Unlock()
		return ErrEditInProgress
	case len(s.items) == 0:
		s.mu.Unlock()
		return ErrEmptyImport
	}
	questions := s.questionsLocked()
	if issues := extract.Validate(questions); len(issues) > 0 {
		s.mu.Unlock()
		return &ValidationError{Issues: issues}
	}
	s.committing = true
	s.mu.Unlock()

	err := importer.Import(ctx, questions)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	if err != nil {
		return fmt.Errorf("import questions: %w", err)
	}
	s.closed = true
	return nil
}

// Discard closes the session without importing and calls onCancel, if set.
func (s *Session) Discard(onCancel func()) {
	s.mu.Lock()
	s.closed = true
	s.editing = -1
	s.draft = model.ExtractedQuestion{}
	s.mu.Unlock()
	if onCancel != nil {
		onCancel()
	}
}
