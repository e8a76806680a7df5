package model

import "time"

// AssignmentExport is the top-level JSON structure for assignment result export.
type AssignmentExport struct {
	AssignmentID  string             `json:"assignment_id"`
	Title         string             `json:"title"`
	MaxScore      float64            `json:"max_score"`
	PromptVariant string             `json:"prompt_variant"`
	ExportedAt    time.Time          `json:"exported_at"`
	Results       []SubmissionResult `json:"results"`
	Decisions     []DecisionRecord   `json:"decisions"`
}

// SubmissionResult holds one student's graded submission for export.
type SubmissionResult struct {
	SubmissionID     string           `json:"submission_id"`
	StudentID        string           `json:"student_id"`
	StudentName      string           `json:"student_name"`
	Status           SubmissionStatus `json:"status"`
	PlagiarismStatus PlagiarismStatus `json:"plagiarism_status,omitempty"`
	FinalScore       *float64         `json:"final_score,omitempty"`
	Feedback         string           `json:"feedback,omitempty"`
	Grading          *GradingResult   `json:"ai_grading,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
	GradedAt         *time.Time       `json:"graded_at,omitempty"`
}
