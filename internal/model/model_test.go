package model

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestCorrectLetterIndex(t *testing.T) {
	q := ExtractedQuestion{Options: []string{"3", "4", "5"}}
	tests := []struct {
		answer *string
		want   int
	}{
		{StringPtr("A"), 0},
		{StringPtr("c"), 2},
		{StringPtr(" B "), 1},
		{StringPtr("D"), -1},
		{StringPtr("AB"), -1},
		{nil, -1},
	}
	for _, tt := range tests {
		q.CorrectAnswer = tt.answer
		if got := q.CorrectLetterIndex(); got != tt.want {
			t.Errorf("CorrectLetterIndex(%q) = %d, want %d", q.Answer(), got, tt.want)
		}
	}
	if OptionLetter(3) != "D" {
		t.Errorf("OptionLetter(3) = %q", OptionLetter(3))
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	q := ExtractedQuestion{Options: []string{"a", "b"}, CorrectAnswer: StringPtr("A")}
	c := q.Clone()
	c.Options[0] = "changed"
	*c.CorrectAnswer = "B"
	if q.Options[0] != "a" || q.Answer() != "A" {
		t.Errorf("clone aliases the original: %+v", q)
	}
}

func tagsOf(t *testing.T, err error) []string {
	t.Helper()
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	var tags []string
	for _, fe := range ve {
		tags = append(tags, fe.Field()+":"+fe.Tag())
	}
	return tags
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name string
		q    ExtractedQuestion
		want []string
	}{
		{
			name: "valid mcq",
			q:    ExtractedQuestion{QuestionText: "2+2?", QuestionType: QuestionMCQ, Options: []string{"3", "4"}, CorrectAnswer: StringPtr("B"), Marks: 1},
		},
		{
			name: "mcq answer outside options",
			q:    ExtractedQuestion{QuestionText: "2+2?", QuestionType: QuestionMCQ, Options: []string{"3", "4"}, CorrectAnswer: StringPtr("Z"), Marks: 1},
			want: []string{"correct_answer:" + TagOptionLetter},
		},
		{
			name: "mcq with one blank option",
			q:    ExtractedQuestion{QuestionText: "2+2?", QuestionType: QuestionMCQ, Options: []string{" "}, CorrectAnswer: StringPtr("A"), Marks: 1},
			want: []string{"options:" + TagMinOptions, "options:" + TagBlankOption},
		},
		{
			name: "true_false with bad answer",
			q:    ExtractedQuestion{QuestionText: "Sky is blue.", QuestionType: QuestionTrueFalse, Options: []string{"True", "False"}, CorrectAnswer: StringPtr("yes"), Marks: 1},
			want: []string{"correct_answer:" + TagTrueFalseAnswer},
		},
		{
			name: "essay with answer",
			q:    ExtractedQuestion{QuestionText: "Discuss.", QuestionType: QuestionEssay, CorrectAnswer: StringPtr("x"), Marks: 5},
			want: []string{"correct_answer:" + TagEssayAnswer},
		},
		{
			name: "blank text and zero marks",
			q:    ExtractedQuestion{QuestionText: "  ", QuestionType: QuestionEssay},
			want: []string{"question_text:" + TagNotBlank, "marks:gt"},
		},
		{
			name: "unknown type",
			q:    ExtractedQuestion{QuestionText: "Q", QuestionType: "matching", Marks: 1},
			want: []string{"question_type:oneof"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tagsOf(t, Validate.Struct(tt.q))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("error %d = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestGradingResultFeedbackRequired(t *testing.T) {
	if err := Validate.Struct(GradingResult{Score: 5, Feedback: "  "}); err == nil {
		t.Error("blank feedback should fail validation")
	}
	if err := Validate.Struct(GradingResult{Score: 5, Feedback: "ok"}); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestQuestionTypeLabel(t *testing.T) {
	if QuestionMCQ.Label() != "Multiple Choice" || QuestionTrueFalse.Label() != "True/False" || QuestionEssay.Label() != "Essay" {
		t.Error("unexpected labels")
	}
	if !QuestionEssay.Valid() || QuestionType("x").Valid() {
		t.Error("unexpected Valid results")
	}
}
