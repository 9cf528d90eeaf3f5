package upload

import (
	"errors"
	"fmt"

	"github.com/sniffpart/sniffpart/pkg/multipart"
)

// Sentinel errors
var (
	// ErrRequestSize indicates the request body exceeds MaxRequestSize.
	ErrRequestSize = errors.New("upload: request too large")

	// ErrPartSize indicates a part exceeds MaxPartSize.
	ErrPartSize = errors.New("upload: part too large")

	// ErrSinkSelection indicates OnPartBegin declined to provide a sink.
	ErrSinkSelection = errors.New("upload: sink selection rejected")

	// ErrSinkWrite indicates a sink failed to accept part bytes.
	ErrSinkWrite = errors.New("upload: sink write failed")

	// ErrSource indicates the byte source failed or was cancelled.
	ErrSource = errors.New("upload: byte source failed")

	// ErrNotMultipart indicates the request is not multipart.
	ErrNotMultipart = errors.New("upload: request is not multipart")

	// ErrMissingCallback indicates a mandatory callback was not set.
	ErrMissingCallback = errors.New("upload: missing callback")

	// ErrInvalidConfig indicates a limit is out of range.
	ErrInvalidConfig = errors.New("upload: invalid configuration")

	// ErrMalformed indicates the body violates the multipart grammar.
	ErrMalformed = multipart.ErrMalformed

	// ErrMissingBoundary indicates the content type has no boundary.
	ErrMissingBoundary = multipart.ErrMissingBoundary
)

// RequestSizeError reports a request that exceeds MaxRequestSize.
type RequestSizeError struct {
	Actual    int64
	Permitted int64
	Declared  bool // Actual is the source's declared length, no bytes were read
}

func (e *RequestSizeError) Error() string {
	return fmt.Sprintf("upload: the size of the request (%d) is greater than the allowed size (%d)", e.Actual, e.Permitted)
}

func (e *RequestSizeError) Unwrap() error {
	return ErrRequestSize
}

// PartSizeError reports a part that exceeds MaxPartSize.
type PartSizeError struct {
	Field     string
	Actual    int64
	Permitted int64
}

func (e *PartSizeError) Error() string {
	return fmt.Sprintf("upload: the size of part %q (%d) is greater than the allowed size (%d)", e.Field, e.Actual, e.Permitted)
}

func (e *PartSizeError) Unwrap() error {
	return ErrPartSize
}

// SinkSelectionError reports an OnPartBegin callback that failed or
// returned no sink.
type SinkSelectionError struct {
	Field string
	Err   error
}

func (e *SinkSelectionError) Error() string {
	return fmt.Sprintf("upload: no sink selected for part %q: %v", e.Field, e.Err)
}

func (e *SinkSelectionError) Unwrap() []error {
	return []error{ErrSinkSelection, e.Err}
}

// SourceError wraps a failure of the underlying byte source.
type SourceError struct {
	Err error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("upload: reading request body: %v", e.Err)
}

func (e *SourceError) Unwrap() []error {
	return []error{ErrSource, e.Err}
}

var errNilSink = errors.New("callback returned a nil sink")
