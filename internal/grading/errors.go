package grading

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMaxScore is returned for a non-positive max score.
	ErrInvalidMaxScore = errors.New("max score must be greater than zero")
	// ErrNoAttachableContent means every submission file failed to fetch.
	ErrNoAttachableContent = errors.New("no valid files could be processed")
	// ErrGradingParse is matched by every GradingParseError.
	ErrGradingParse = errors.New("failed to parse grading response")
	// ErrUngradable means a submission had neither usable files nor text.
	ErrUngradable = errors.New("submission has no gradable content")
)

// GradingParseError reports a model reply that is not a usable grading result.
type GradingParseError struct {
	Raw string
	Err error
}

func (e *GradingParseError) Error() string {
	return fmt.Sprintf("%v: %v", ErrGradingParse, e.Err)
}

func (e *GradingParseError) Unwrap() error { return e.Err }

func (e *GradingParseError) Is(target error) bool { return target == ErrGradingParse }

// FetchError is a submission file that could not be downloaded.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
