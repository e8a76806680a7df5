package model

import (
	"strings"
	"time"
)

// QuestionType is the kind of question extracted from a document.
type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionTrueFalse QuestionType = "true_false"
	QuestionEssay     QuestionType = "essay"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionTrueFalse, QuestionEssay:
		return true
	}
	return false
}

// Label returns the human-readable name shown in reviews.
func (t QuestionType) Label() string {
	switch t {
	case QuestionMCQ:
		return "Multiple Choice"
	case QuestionTrueFalse:
		return "True/False"
	case QuestionEssay:
		return "Essay"
	}
	return string(t)
}

// ExtractedQuestion is a question parsed out of a source document by the model.
type ExtractedQuestion struct {
	QuestionText  string       `json:"question_text" validate:"notblank"`
	QuestionType  QuestionType `json:"question_type" validate:"required,oneof=mcq true_false essay"`
	Options       []string     `json:"options"`
	CorrectAnswer *string      `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
	Marks         float64      `json:"marks" validate:"gt=0"`
	HasImage      bool         `json:"has_image"`
}

// Clone returns a deep copy so edits never alias the original slice or pointer.
func (q ExtractedQuestion) Clone() ExtractedQuestion {
	c := q
	if q.Options != nil {
		c.Options = append([]string(nil), q.Options...)
	}
	if q.CorrectAnswer != nil {
		a := *q.CorrectAnswer
		c.CorrectAnswer = &a
	}
	return c
}

// Answer returns the correct answer or an empty string.
func (q ExtractedQuestion) Answer() string {
	if q.CorrectAnswer == nil {
		return ""
	}
	return *q.CorrectAnswer
}

// CorrectLetterIndex maps an MCQ answer letter (A, B, ...) to its option index.
// It returns -1 when the answer does not name an existing option.
func (q ExtractedQuestion) CorrectLetterIndex() int {
	a := strings.TrimSpace(q.Answer())
	if len(a) != 1 {
		return -1
	}
	idx := int(strings.ToUpper(a)[0]) - 'A'
	if idx < 0 || idx >= len(q.Options) {
		return -1
	}
	return idx
}

// OptionLetter returns the answer letter for option index i.
func OptionLetter(i int) string {
	return string(rune('A' + i))
}

// StringPtr is a small helper for optional answers.
func StringPtr(s string) *string {
	return &s
}

// DocumentImage is an image embedded in an uploaded document.
type DocumentImage struct {
	Base64Data string `json:"data"`
	MimeType   string `json:"mime_type"`
}

// GradingBreakdown splits a score over the four default rubric criteria.
type GradingBreakdown struct {
	Content          float64 `json:"content"`
	Structure        float64 `json:"structure"`
	CriticalThinking float64 `json:"criticalThinking"`
	LanguageGrammar  float64 `json:"languageGrammar"`
}

// Sum returns the total of all breakdown components.
func (b GradingBreakdown) Sum() float64 {
	return b.Content + b.Structure + b.CriticalThinking + b.LanguageGrammar
}

// Breakdown ceiling weights relative to the max score.
const (
	WeightContent          = 0.40
	WeightStructure        = 0.25
	WeightCriticalThinking = 0.20
	WeightLanguageGrammar  = 0.15
)

// GradingResult is the model's assessment of a submission.
type GradingResult struct {
	Score            float64          `json:"score"`
	Percentage       float64          `json:"percentage"`
	Feedback         string           `json:"feedback" validate:"notblank"`
	Strengths        []string         `json:"strengths"`
	Improvements     []string         `json:"improvements"`
	GradingBreakdown GradingBreakdown `json:"gradingBreakdown"`
}

// Decision is a reviewer's verdict on a flagged plagiarism pair.
type Decision string

const (
	DecisionIgnore Decision = "ignore"
	DecisionReject Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionIgnore || d == DecisionReject
}

// PlagiarismMatch is a pair of submissions with a high similarity score.
type PlagiarismMatch struct {
	Submission1ID       string   `json:"submission1_id"`
	Submission2ID       string   `json:"submission2_id"`
	Student1ID          string   `json:"student1_id"`
	Student2ID          string   `json:"student2_id"`
	Student1Name        string   `json:"student1_name"`
	Student2Name        string   `json:"student2_name"`
	SimilarityScore     float64  `json:"similarity_score"`
	MatchedTextSnippets []string `json:"matched_text_snippets"`
}

// PairKey identifies the pair in the adjudication workflow.
func (m PlagiarismMatch) PairKey() string {
	return m.Submission1ID + "-" + m.Submission2ID
}

// SubmissionIDs returns both submission identifiers.
func (m PlagiarismMatch) SubmissionIDs() []string {
	return []string{m.Submission1ID, m.Submission2ID}
}

// PlagiarismReport is the output of a detection pass over an assignment.
type PlagiarismReport struct {
	AssignmentID     string            `json:"assignment_id"`
	TotalSubmissions int               `json:"total_submissions"`
	FlaggedPairs     []PlagiarismMatch `json:"flagged_pairs"`
	CheckedAt        time.Time         `json:"checked_at"`
}

// SubmissionStatus is the lifecycle state of an assignment submission.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionRejected  SubmissionStatus = "rejected"
)

// PlagiarismStatus records the outcome of a plagiarism decision on a submission.
type PlagiarismStatus string

const (
	PlagiarismNone     PlagiarismStatus = ""
	PlagiarismCleared  PlagiarismStatus = "cleared"
	PlagiarismRejected PlagiarismStatus = "rejected"
)

// Assignment is a graded piece of coursework.
type Assignment struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Instructions string  `json:"instructions"`
	MaxScore     float64 `json:"max_score"`
	Rubric       string  `json:"rubric"`
	CreatedBy    string  `json:"created_by"`
}

// Question returns the prompt text the grader sees for this assignment.
func (a Assignment) Question() string {
	return a.Title + "\n\n" + a.Instructions
}

// Submission is one student's answer to an assignment.
type Submission struct {
	ID               string           `json:"id"`
	AssignmentID     string           `json:"assignment_id"`
	StudentID        string           `json:"student_id"`
	StudentName      string           `json:"student_name"`
	Text             string           `json:"submission_text"`
	FileURLs         []string         `json:"file_urls"`
	Status           SubmissionStatus `json:"status"`
	FinalScore       *float64         `json:"final_score,omitempty"`
	Feedback         string           `json:"feedback,omitempty"`
	PlagiarismScore  *float64         `json:"plagiarism_score,omitempty"`
	PlagiarismStatus PlagiarismStatus `json:"plagiarism_status,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	GradedAt         *time.Time       `json:"graded_at,omitempty"`
}

// HasText reports whether the submission carries non-blank text.
func (s Submission) HasText() bool {
	return strings.TrimSpace(s.Text) != ""
}

// HasFiles reports whether the submission has attached files.
func (s Submission) HasFiles() bool {
	return len(s.FileURLs) > 0
}

// StoredQuestion is an extracted question after import into a test.
type StoredQuestion struct {
	ID       int64  `json:"id"`
	TestID   string `json:"test_id"`
	Position int    `json:"position"`
	ExtractedQuestion
}

// DecisionRecord is a persisted plagiarism decision.
type DecisionRecord struct {
	ID            int64     `json:"id"`
	AssignmentID  string    `json:"assignment_id"`
	SubmissionIDs []string  `json:"submission_ids"`
	Decision      Decision  `json:"decision"`
	ActorID       string    `json:"actor_id"`
	Reason        string    `json:"reason,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotificationSubmissionRejected NotificationType = "submission_rejected"
	NotificationPlagiarismDetected NotificationType = "plagiarism_detected"
)

// Notification is a message for a student or lecturer.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link"`
	CreatedAt time.Time        `json:"created_at"`
}

// GradingConfig holds runtime grading parameters set via CLI flags.
type GradingConfig struct {
	PromptVariant       string  // strict, standard, lenient
	Workers             int     // bulk grading concurrency
	PlagiarismThreshold float64 // similarity percentage that flags a pair
	Lang                string
}

// Role is a profile's role.
type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
)

// Profile is a student or lecturer known to the store.
type Profile struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName joins the first and last name.
func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}
