package extract

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/assessor/internal/model"
)

// Validate checks every question and returns all issues found.
func Validate(questions []model.ExtractedQuestion) []Issue {
	var issues []Issue
	for i, q := range questions {
		issues = append(issues, ValidateQuestion(i, q)...)
	}
	return issues
}

// ValidateQuestion checks a single question; index is stamped on each issue.
func ValidateQuestion(index int, q model.ExtractedQuestion) []Issue {
	err := model.Validate.Struct(q)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Index: index, Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{Index: index, Field: fe.Field(), Message: message(fe)})
	}
	return issues
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case model.TagNotBlank:
		return "must not be blank"
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case model.TagMinOptions:
		return fmt.Sprintf("multiple choice questions need at least %s options", fe.Param())
	case model.TagBlankOption:
		return "options must not be blank"
	case model.TagOptionLetter:
		if fe.Param() == "" {
			return "multiple choice questions need a correct answer letter"
		}
		return fmt.Sprintf("answer %q does not name an option", fe.Param())
	case model.TagTrueFalseAnswer:
		return `true/false questions need "True" or "False" as the answer`
	case model.TagEssayOptions:
		return "essay questions must not have options"
	case model.TagEssayAnswer:
		return "essay questions must not have a correct answer"
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}
