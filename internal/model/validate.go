package model

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validation tags reported by the question struct rules.
const (
	TagNotBlank        = "notblank"
	TagMinOptions      = "min_options"
	TagBlankOption     = "blank_option"
	TagOptionLetter    = "option_letter"
	TagTrueFalseAnswer = "true_false_answer"
	TagEssayOptions    = "essay_options"
	TagEssayAnswer     = "essay_answer"
)

// Validate checks struct tags and the per-type question rules. Field errors carry JSON names.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(TagNotBlank, notBlankValidation)
	v.RegisterStructValidation(questionStructValidation, ExtractedQuestion{})
	return v
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

// questionStructValidation enforces the per-type answer and option rules.
func questionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(ExtractedQuestion)
	if !ok {
		return
	}

	switch q.QuestionType {
	case QuestionMCQ:
		if len(q.Options) < 2 {
			sl.ReportError(q.Options, "options", "Options", TagMinOptions, "2")
		}
		for _, o := range q.Options {
			if strings.TrimSpace(o) == "" {
				sl.ReportError(q.Options, "options", "Options", TagBlankOption, "")
				break
			}
		}
		if q.CorrectLetterIndex() < 0 {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", TagOptionLetter, q.Answer())
		}
	case QuestionTrueFalse:
		if a := q.Answer(); a != "True" && a != "False" {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", TagTrueFalseAnswer, a)
		}
	case QuestionEssay:
		if len(q.Options) > 0 {
			sl.ReportError(q.Options, "options", "Options", TagEssayOptions, "")
		}
		if q.CorrectAnswer != nil {
			sl.ReportError(q.CorrectAnswer, "correct_answer", "CorrectAnswer", TagEssayAnswer, "")
		}
	}
}
