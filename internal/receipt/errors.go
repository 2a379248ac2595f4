package receipt

import (
	"errors"
	"fmt"
)

// ErrParse matches every *ParseError
var ErrParse = errors.New("failed to parse model response")

// ParseError reports a model reply that could not be turned into raw items.
// Index is the offending element, or -1 when the payload as a whole is unusable.
type ParseError struct {
	Index    int
	Reason   string
	Response string
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s\n\nResponse:\n%s", ErrParse, e.Reason, e.Response)
	}
	return fmt.Sprintf("%s: invalid item at index %d: %s\n\nResponse:\n%s", ErrParse, e.Index, e.Reason, e.Response)
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// VerificationError describes a failed verification attempt.
// It is logged and never returned from ExtractItems.
type VerificationError struct {
	Name string // empty for batch verification
	Err  error
}

func (e *VerificationError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("batch verification failed: %v", e.Err)
	}
	return fmt.Sprintf("verification failed for %q: %v", e.Name, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
