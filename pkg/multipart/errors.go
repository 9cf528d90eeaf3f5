package multipart

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	// ErrMalformed indicates the input does not follow the multipart grammar.
	ErrMalformed = errors.New("multipart: malformed input")

	// ErrMissingBoundary indicates no usable boundary token was supplied.
	ErrMissingBoundary = errors.New("multipart: missing boundary")

	// ErrFailed is returned when feeding a parser that already failed.
	ErrFailed = errors.New("multipart: parser already failed")
)

// FormatError provides detailed information about a parsing error.
type FormatError struct {
	Offset int64  // Stream offset at which the error was detected
	State  State  // State the parser was in
	Reason string // Human-readable explanation
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("multipart: format error at offset %d (%s): %s", e.Offset, e.State, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return ErrMalformed
}
