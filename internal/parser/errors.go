package parser

import (
	"errors"
	"fmt"
)

// Failure reasons reported by Parse.
const (
	ReasonRuleLoad          = "rule loading failed"
	ReasonAmountNotFound    = "Amount not found"
	ReasonReferenceNotFound = "Reference number not found (required for transaction SMS)"
)

// Validation failures.
var (
	ErrAmountNotFound    = errors.New(ReasonAmountNotFound)
	ErrReferenceNotFound = errors.New(ReasonReferenceNotFound)
)

// ParseError is the typed failure for a single message. Reason is stable and
// meant for display; Err carries the cause for errors.Is checks.
type ParseError struct {
	Err    error
	Reason string
}

func (e *ParseError) Error() string {
	return e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(reason string, err error) *ParseError {
	if err == nil {
		err = fmt.Errorf("%s", reason)
	}
	return &ParseError{Reason: reason, Err: err}
}

// Reason extracts the failure reason from err, or err.Error() for foreign errors.
func Reason(err error) string {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return err.Error()
}
