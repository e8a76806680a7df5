package extract

import (
	"errors"
	"fmt"
	"strings"
)

// ErrExtraction is matched by every ExtractionError.
var ErrExtraction = errors.New("question extraction failed")

// Issue is one validation problem with an extracted question.
type Issue struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("question %d: %s", i.Index+1, i.Message)
	}
	return fmt.Sprintf("question %d: %s: %s", i.Index+1, i.Field, i.Message)
}

// ExtractionError reports model output that could not be turned into questions.
type ExtractionError struct {
	Reason string
	Raw    string  // model output as received
	Issues []Issue // set when questions decoded but failed validation
	Err    error   // underlying decode error, if any
}

func (e *ExtractionError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrExtraction.Error())
	sb.WriteString(": ")
	sb.WriteString(e.Reason)
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	for _, is := range e.Issues {
		sb.WriteString("; ")
		sb.WriteString(is.String())
	}
	return sb.String()
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }
