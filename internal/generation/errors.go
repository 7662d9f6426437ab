package generation

import "fmt"

// Classification labels a generation failure and decides retry eligibility.
type Classification string

const (
	ClassificationRateLimited   Classification = "RATE_LIMITED"
	ClassificationAPIError      Classification = "API_ERROR"
	ClassificationTimeout       Classification = "TIMEOUT"
	ClassificationContentPolicy Classification = "CONTENT_POLICY"
	ClassificationInvalidImage  Classification = "INVALID_IMAGE"
)

// Retryable reports whether another attempt may succeed. Content-policy and
// invalid-image failures are final: retrying them burns time and credits for
// the same answer.
func (c Classification) Retryable() bool {
	switch c {
	case ClassificationRateLimited, ClassificationAPIError, ClassificationTimeout:
		return true
	default:
		return false
	}
}

// Error is a generation failure tagged with its classification. The
// classification travels with the error so callers never have to inspect
// message strings.
type Error struct {
	Classification Classification
	Message        string
	err            error
}

func NewError(classification Classification, message string) *Error {
	return &Error{Classification: classification, Message: message}
}

func WrapError(classification Classification, message string, err error) *Error {
	return &Error{Classification: classification, Message: message, err: err}
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("generation failed (%s): %s: %s", e.Classification, e.Message, e.err)
	}
	return fmt.Sprintf("generation failed (%s): %s", e.Classification, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) Retryable() bool {
	return e.Classification.Retryable()
}
