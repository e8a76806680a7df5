package llm

import (
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

var (
	// ErrConfiguration means the model credential is missing or was refused.
	ErrConfiguration = errors.New("model API key is not configured or invalid")
	// ErrEmptyInput means the caller supplied nothing worth sending.
	ErrEmptyInput = errors.New("no content to send to the model")
	// ErrNoChoices means the model answered without any completion.
	ErrNoChoices = errors.New("model returned no choices")
)

// codeInsufficientQuota is the service error code for an exhausted
// billing quota, as opposed to a short-term rate limit.
const codeInsufficientQuota = "insufficient_quota"

// NetworkError is a failed call to the model service.
type NetworkError struct {
	StatusCode int    // 0 when the request never got a response
	Code       string // service error code, if any
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("model service request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("model service request failed: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Transient reports whether a retry could succeed. A rate limit is
// transient, an exhausted quota is not.
func (e *NetworkError) Transient() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return !e.QuotaExceeded()
	}
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// QuotaExceeded reports whether the service refused the call because the
// account quota is used up.
func (e *NetworkError) QuotaExceeded() bool {
	return e.StatusCode == http.StatusTooManyRequests && e.Code == codeInsufficientQuota
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func errorCode(err error) string {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok {
			return code
		}
	}
	return ""
}

// classify maps a go-openai error onto the gateway's error taxonomy.
func classify(err error) error {
	code := statusCode(err)
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return &NetworkError{StatusCode: code, Code: errorCode(err), Err: err}
}

func isTransient(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Transient()
}

func isQuotaExceeded(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.QuotaExceeded()
}
