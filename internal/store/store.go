package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/assessor/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		first_name TEXT NOT NULL DEFAULT '',
		last_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		instructions TEXT NOT NULL DEFAULT '',
		max_score REAL NOT NULL,
		rubric TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		submission_text TEXT NOT NULL DEFAULT '',
		file_urls TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'submitted',
		final_score REAL,
		feedback TEXT NOT NULL DEFAULT '',
		plagiarism_score REAL,
		plagiarism_status TEXT NOT NULL DEFAULT '',
		submitted_at DATETIME NOT NULL,
		graded_at DATETIME,
		FOREIGN KEY (assignment_id) REFERENCES assignments(id)
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_assignment ON submissions(assignment_id, status);

	CREATE TABLE IF NOT EXISTS gradings (
		submission_id TEXT PRIMARY KEY,
		score REAL NOT NULL,
		percentage REAL NOT NULL,
		feedback TEXT NOT NULL,
		strengths TEXT NOT NULL DEFAULT '[]',
		improvements TEXT NOT NULL DEFAULT '[]',
		breakdown TEXT NOT NULL DEFAULT '{}',
		graded_at DATETIME NOT NULL,
		FOREIGN KEY (submission_id) REFERENCES submissions(id)
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		test_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_text TEXT NOT NULL,
		question_type TEXT NOT NULL,
		options TEXT NOT NULL DEFAULT '[]',
		correct_answer TEXT,
		explanation TEXT NOT NULL DEFAULT '',
		marks REAL NOT NULL DEFAULT 1,
		has_image INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_test ON questions(test_id, position);

	CREATE TABLE IF NOT EXISTS plagiarism_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		assignment_id TEXT NOT NULL,
		submission_ids TEXT NOT NULL,
		decision TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		decided_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);

	CREATE TABLE IF NOT EXISTS app_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateAssignment stores an assignment; an empty ID gets a new UUID.
func (s *Store) CreateAssignment(ctx context.Context, a model.Assignment) (model.Assignment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (id, title, instructions, max_score, rubric, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Instructions, a.MaxScore, a.Rubric, a.CreatedBy, time.Now(),
	)
	if err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

// GetAssignment returns an assignment by ID.
func (s *Store) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	var a model.Assignment
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, instructions, max_score, rubric, created_by FROM assignments WHERE id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Instructions, &a.MaxScore, &a.Rubric, &a.CreatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return a, fmt.Errorf("assignment %s: %w", id, ErrNotFound)
	}
	return a, err
}

// CreateSubmission stores a submission in status submitted.
func (s *Store) CreateSubmission(ctx context.Context, sub model.Submission) (model.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.FileURLs == nil {
		sub.FileURLs = []string{}
	}
	urls, err := json.Marshal(sub.FileURLs)
	if err != nil {
		return model.Submission{}, err
	}
	sub.Status = model.SubmissionSubmitted
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submissions (id, assignment_id, student_id, submission_text, file_urls, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.AssignmentID, sub.StudentID, sub.Text, string(urls), sub.Status, sub.SubmittedAt,
	)
	if err != nil {
		return model.Submission{}, err
	}
	return sub, nil
}

const submissionColumns = `s.id, s.assignment_id, s.student_id,
	TRIM(COALESCE(p.first_name, '') || ' ' || COALESCE(p.last_name, '')),
	s.submission_text, s.file_urls, s.status, s.final_score, s.feedback,
	s.plagiarism_score, s.plagiarism_status, s.submitted_at, s.graded_at
	FROM submissions s LEFT JOIN profiles p ON p.id = s.student_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (model.Submission, error) {
	var sub model.Submission
	var urls string
	err := row.Scan(&sub.ID, &sub.AssignmentID, &sub.StudentID, &sub.StudentName,
		&sub.Text, &urls, &sub.Status, &sub.FinalScore, &sub.Feedback,
		&sub.PlagiarismScore, &sub.PlagiarismStatus, &sub.SubmittedAt, &sub.GradedAt)
	if err != nil {
		return sub, err
	}
	if err := json.Unmarshal([]byte(urls), &sub.FileURLs); err != nil {
		return sub, fmt.Errorf("decode file urls of %s: %w", sub.ID, err)
	}
	return sub, nil
}

// GetSubmission returns a submission by ID.
func (s *Store) GetSubmission(ctx context.Context, id string) (model.Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return sub, fmt.Errorf("submission %s: %w", id, ErrNotFound)
	}
	return sub, err
}

func (s *Store) querySubmissions(ctx context.Context, where string, args ...any) ([]model.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+submissionColumns+` WHERE `+where+` ORDER BY s.submitted_at, s.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ListSubmissions returns every submission of an assignment.
func (s *Store) ListSubmissions(ctx context.Context, assignmentID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx, `s.assignment_id = ?`, assignmentID)
}

// ListSubmitted returns submissions still awaiting grading, the set
// plagiarism detection runs over.
func (s *Store) ListSubmitted(ctx context.Context, assignmentID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx, `s.assignment_id = ? AND s.status = ?`, assignmentID, model.SubmissionSubmitted)
}

// ListUngraded returns submitted submissions not rejected for plagiarism.
func (s *Store) ListUngraded(ctx context.Context, assignmentID string) ([]model.Submission, error) {
	return s.querySubmissions(ctx, `s.assignment_id = ? AND s.status = ? AND s.plagiarism_status != ?`,
		assignmentID, model.SubmissionSubmitted, model.PlagiarismRejected)
}
