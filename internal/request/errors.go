package request

import "fmt"

// ValidationError is a normalizer rejection. Code is one of the wire error
// codes from cnst and is surfaced to the UI as an error event; the offending
// payload is discarded, never partially constructed.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
