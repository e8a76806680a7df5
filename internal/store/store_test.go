package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pavelanni/assessor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAssignment(t *testing.T, s *Store) (model.Assignment, []model.Submission) {
	t.Helper()
	ctx := context.Background()
	for _, p := range []model.Profile{
		{ID: "lect-1", FirstName: "Grace", LastName: "Hopper", Role: model.RoleLecturer},
		{ID: "u1", FirstName: "Ada", LastName: "Obi"},
		{ID: "u2", FirstName: "Ben"},
	} {
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
	}
	asg, err := s.CreateAssignment(ctx, model.Assignment{Title: "Essay", Instructions: "Discuss.", MaxScore: 20, CreatedBy: "lect-1"})
	if err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	var subs []model.Submission
	for _, sub := range []model.Submission{
		{AssignmentID: asg.ID, StudentID: "u1", Text: "first essay"},
		{AssignmentID: asg.ID, StudentID: "u2", Text: "second essay", FileURLs: []string{"https://files.example/a.pdf"}},
		{AssignmentID: asg.ID, StudentID: "u3"},
	} {
		created, err := s.CreateSubmission(ctx, sub)
		if err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
		subs = append(subs, created)
	}
	return asg, subs
}

func TestAssignmentAndSubmissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	got, err := s.GetAssignment(ctx, asg.ID)
	if err != nil {
		t.Fatalf("GetAssignment: %v", err)
	}
	if got.Title != "Essay" || got.MaxScore != 20 || got.CreatedBy != "lect-1" {
		t.Errorf("unexpected assignment %+v", got)
	}
	if _, err := s.GetAssignment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sub, err := s.GetSubmission(ctx, subs[1].ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.StudentName != "Ben" || sub.Status != model.SubmissionSubmitted || len(sub.FileURLs) != 1 {
		t.Errorf("unexpected submission %+v", sub)
	}
	if sub.FinalScore != nil || sub.GradedAt != nil {
		t.Error("new submission should have no score")
	}
	if _, err := s.GetSubmission(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	all, err := s.ListSubmissions(ctx, asg.ID)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(all) != 3 || all[0].StudentName != "Ada Obi" || all[2].StudentName != "" {
		t.Errorf("unexpected submissions %+v", all)
	}
}

func TestSaveGrading(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	result := model.GradingResult{
		Score:            15,
		Percentage:       75,
		Feedback:         "Solid argument.",
		Strengths:        []string{"clear thesis"},
		GradingBreakdown: model.GradingBreakdown{Content: 7, Structure: 4, CriticalThinking: 2, LanguageGrammar: 2},
	}
	if err := s.SaveGrading(ctx, subs[0].ID, result); err != nil {
		t.Fatalf("SaveGrading: %v", err)
	}
	if err := s.SaveGrading(ctx, "missing", result); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	sub, _ := s.GetSubmission(ctx, subs[0].ID)
	if sub.Status != model.SubmissionGraded || sub.FinalScore == nil || *sub.FinalScore != 15 || sub.GradedAt == nil {
		t.Errorf("submission not marked graded: %+v", sub)
	}
	g, err := s.GetGrading(ctx, subs[0].ID)
	if err != nil || g == nil {
		t.Fatalf("GetGrading: %v %v", g, err)
	}
	if g.GradingBreakdown.Content != 7 || len(g.Strengths) != 1 || g.Improvements == nil {
		t.Errorf("unexpected grading %+v", g)
	}

	result.Score = 18
	if err := s.SaveGrading(ctx, subs[0].ID, result); err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if g, _ := s.GetGrading(ctx, subs[0].ID); g.Score != 18 {
		t.Errorf("regrade should replace the result, got %v", g.Score)
	}
	if g, _ := s.GetGrading(ctx, subs[1].ID); g != nil {
		t.Error("ungraded submission should have no grading")
	}

	ungraded, err := s.ListUngraded(ctx, asg.ID)
	if err != nil {
		t.Fatalf("ListUngraded: %v", err)
	}
	if len(ungraded) != 2 {
		t.Errorf("expected 2 ungraded, got %d", len(ungraded))
	}
}

func TestImportQuestions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []model.ExtractedQuestion{
		{QuestionText: "2+2?", QuestionType: model.QuestionMCQ, Options: []string{"3", "4"}, CorrectAnswer: model.StringPtr("B"), Marks: 1},
		{QuestionText: "Discuss.", QuestionType: model.QuestionEssay, Marks: 10},
	}
	ids, err := s.ImportQuestions(ctx, "test-1", first)
	if err != nil {
		t.Fatalf("ImportQuestions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}
	if _, err := s.ImportQuestions(ctx, "test-1", []model.ExtractedQuestion{
		{QuestionText: "Sky is blue.", QuestionType: model.QuestionTrueFalse, Options: []string{"True", "False"}, CorrectAnswer: model.StringPtr("True"), Marks: 1},
	}); err != nil {
		t.Fatalf("second import: %v", err)
	}
	if _, err := s.ImportQuestions(ctx, "", first); err == nil {
		t.Error("expected error without test id")
	}

	qs, err := s.ListQuestions(ctx, "test-1")
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(qs))
	}
	for i, q := range qs {
		if q.Position != i+1 {
			t.Errorf("question %d has position %d", i, q.Position)
		}
	}
	if qs[0].Answer() != "B" || len(qs[0].Options) != 2 {
		t.Errorf("unexpected mcq %+v", qs[0])
	}
	if qs[1].CorrectAnswer != nil || qs[1].Options != nil {
		t.Errorf("essay should have no answer or options, got %+v", qs[1])
	}
	if qs[2].QuestionType != model.QuestionTrueFalse {
		t.Errorf("unexpected third question %+v", qs[2])
	}
}

func TestRecordDecisionReject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)
	ids := []string{subs[0].ID, subs[1].ID}

	if err := s.RecordDecision(ctx, asg.ID, ids, model.DecisionReject, "lect-1", "copied paragraphs"); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	for _, id := range ids {
		sub, _ := s.GetSubmission(ctx, id)
		if sub.Status != model.SubmissionRejected || sub.PlagiarismStatus != model.PlagiarismRejected {
			t.Errorf("submission %s not rejected: %+v", id, sub)
		}
		if sub.FinalScore == nil || *sub.FinalScore != 0 {
			t.Errorf("rejected submission should score 0, got %v", sub.FinalScore)
		}
		if sub.Feedback != "Submission rejected due to plagiarism. copied paragraphs" {
			t.Errorf("unexpected feedback %q", sub.Feedback)
		}
	}

	for _, student := range []string{"u1", "u2"} {
		notes, err := s.ListNotifications(ctx, student)
		if err != nil {
			t.Fatalf("ListNotifications: %v", err)
		}
		if len(notes) != 1 {
			t.Fatalf("expected 1 notification for %s, got %d", student, len(notes))
		}
		n := notes[0]
		if n.Type != model.NotificationSubmissionRejected || n.Title != "Assignment Submission Rejected" {
			t.Errorf("unexpected notification %+v", n)
		}
		if !strings.HasSuffix(n.Message, "Reason: copied paragraphs") || n.Link != "/student/assignments/"+asg.ID {
			t.Errorf("unexpected notification body %+v", n)
		}
	}

	records, err := s.ListDecisions(ctx, asg.ID)
	if err != nil {
		t.Fatalf("ListDecisions: %v", err)
	}
	if len(records) != 1 || records[0].Decision != model.DecisionReject || records[0].Reason != "copied paragraphs" ||
		strings.Join(records[0].SubmissionIDs, ",") != strings.Join(ids, ",") {
		t.Errorf("unexpected records %+v", records)
	}

	ungraded, _ := s.ListUngraded(ctx, asg.ID)
	if len(ungraded) != 1 {
		t.Errorf("rejected submissions should not be graded, got %d ungraded", len(ungraded))
	}
}

func TestRecordDecisionIgnore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	if err := s.RecordDecision(ctx, asg.ID, []string{subs[0].ID, subs[1].ID}, model.DecisionIgnore, "lect-1", ""); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	sub, _ := s.GetSubmission(ctx, subs[0].ID)
	if sub.Status != model.SubmissionSubmitted || sub.PlagiarismStatus != model.PlagiarismCleared {
		t.Errorf("ignored submission should be cleared, got %+v", sub)
	}
	if notes, _ := s.ListNotifications(ctx, "u1"); len(notes) != 0 {
		t.Errorf("ignore should not notify, got %+v", notes)
	}
	if err := s.RecordDecision(ctx, asg.ID, []string{subs[0].ID}, "approve", "lect-1", ""); err == nil {
		t.Error("expected error for unknown decision")
	}
}

func TestRejectDefaultReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	if err := s.RecordDecision(ctx, asg.ID, []string{subs[0].ID}, model.DecisionReject, "lect-1", ""); err != nil {
		t.Fatalf("RecordDecision: %v", err)
	}
	notes, _ := s.ListNotifications(ctx, "u1")
	if len(notes) != 1 || !strings.HasSuffix(notes[0].Message, "Reason: "+defaultRejectReason) {
		t.Errorf("expected default reason, got %+v", notes)
	}
	sub, _ := s.GetSubmission(ctx, subs[0].ID)
	if sub.Feedback != "Submission rejected due to plagiarism." {
		t.Errorf("unexpected feedback %q", sub.Feedback)
	}
}

func TestPlagiarismScoresAndLecturerNotice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	report := model.PlagiarismReport{
		AssignmentID: asg.ID,
		FlaggedPairs: []model.PlagiarismMatch{
			{Submission1ID: subs[0].ID, Submission2ID: subs[1].ID, SimilarityScore: 91},
			{Submission1ID: subs[0].ID, Submission2ID: subs[2].ID, SimilarityScore: 74},
		},
	}
	if err := s.SavePlagiarismScores(ctx, report); err != nil {
		t.Fatalf("SavePlagiarismScores: %v", err)
	}
	want := map[string]float64{subs[0].ID: 91, subs[1].ID: 91, subs[2].ID: 74}
	for id, score := range want {
		sub, _ := s.GetSubmission(ctx, id)
		if sub.PlagiarismScore == nil || *sub.PlagiarismScore != score {
			t.Errorf("submission %s: expected score %v, got %v", id, score, sub.PlagiarismScore)
		}
	}

	if err := s.NotifyLecturer(ctx, asg.ID, "lect-1", 2); err != nil {
		t.Fatalf("NotifyLecturer: %v", err)
	}
	notes, _ := s.ListNotifications(ctx, "lect-1")
	if len(notes) != 1 || notes[0].Type != model.NotificationPlagiarismDetected ||
		!strings.HasPrefix(notes[0].Message, "2 submission pair(s)") ||
		notes[0].Link != "/lecturer/assignments/"+asg.ID+"/plagiarism" {
		t.Errorf("unexpected lecturer notification %+v", notes)
	}
}

func TestMetadataAndExport(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	asg, subs := seedAssignment(t, s)

	if v, err := s.GetMetadata(ctx, MetaPromptVariant); err != nil || v != "" {
		t.Errorf("missing key should be empty, got %q %v", v, err)
	}
	if err := s.SetMetadata(ctx, MetaPromptVariant, "standard"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata(ctx, MetaPromptVariant, "strict"); err != nil {
		t.Fatalf("SetMetadata overwrite: %v", err)
	}

	if err := s.SaveGrading(ctx, subs[0].ID, model.GradingResult{Score: 12, Percentage: 60, Feedback: "ok"}); err != nil {
		t.Fatalf("SaveGrading: %v", err)
	}
	exp, err := s.ExportAssignment(ctx, asg.ID)
	if err != nil {
		t.Fatalf("ExportAssignment: %v", err)
	}
	if exp.PromptVariant != "strict" || exp.Title != "Essay" || len(exp.Results) != 3 {
		t.Errorf("unexpected export %+v", exp)
	}
	if exp.Results[0].Grading == nil || exp.Results[0].Grading.Score != 12 || exp.Results[1].Grading != nil {
		t.Errorf("unexpected gradings in export %+v", exp.Results)
	}
	if exp.Decisions == nil {
		t.Error("decisions should be an empty list, not null")
	}
	if _, err := s.ExportAssignment(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestProfiles(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertProfile(ctx, model.Profile{ID: "u9", FirstName: "Ngozi"}); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}
	if err := s.UpsertProfile(ctx, model.Profile{ID: "u9", FirstName: "Ngozi", LastName: "Eze", Role: model.RoleLecturer}); err != nil {
		t.Fatalf("UpsertProfile update: %v", err)
	}
	p, err := s.GetProfile(ctx, "u9")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.FullName() != "Ngozi Eze" || p.Role != model.RoleLecturer {
		t.Errorf("unexpected profile %+v", p)
	}
	if _, err := s.GetProfile(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
