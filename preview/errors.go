package preview

import (
	"errors"
	"fmt"
)

// FetchError reports that a document could not be retrieved from its store.
type FetchError struct {
	DocumentID string
	NotFound   bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("document %s not found", e.DocumentID)
	}
	return fmt.Sprintf("fetch document %s: %v", e.DocumentID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewNotFoundError builds the FetchError stores return for missing documents.
func NewNotFoundError(documentID string) *FetchError {
	return &FetchError{DocumentID: documentID, NotFound: true}
}

// IsNotFound reports whether err is a FetchError for a missing document.
func IsNotFound(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.NotFound
}

// FormatMismatchError records a declared type that disagrees with the bytes.
// The pipeline recovers from it by trusting the bytes; it is only logged.
type FormatMismatchError struct {
	Declared string
	Detected Format
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("declared %q but content is %s", e.Declared, e.Detected)
}

// DecodeErrorKind classifies decode failures.
type DecodeErrorKind int

const (
	EmptyBuffer DecodeErrorKind = iota + 1
	NoValidFrames
	PageFailure
)

func (k DecodeErrorKind) String() string {
	switch k {
	case EmptyBuffer:
		return "empty_buffer"
	case NoValidFrames:
		return "no_valid_frames"
	case PageFailure:
		return "page_failure"
	default:
		return "unknown"
	}
}

// DecodeError is a decode failure. Page is set for PageFailure only.
type DecodeError struct {
	Kind DecodeErrorKind
	Page int
	Err  error
}

var (
	ErrEmptyBuffer   = &DecodeError{Kind: EmptyBuffer}
	ErrNoValidFrames = &DecodeError{Kind: NoValidFrames}
	ErrPageFailure   = &DecodeError{Kind: PageFailure}
)

func (e *DecodeError) Error() string {
	switch {
	case e.Kind == PageFailure && e.Err != nil:
		return fmt.Sprintf("page %d: %v", e.Page, e.Err)
	case e.Kind == PageFailure:
		return fmt.Sprintf("page %d failed", e.Page)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches any DecodeError of the same kind, so errors.Is(err,
// ErrNoValidFrames) works regardless of the wrapped cause.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Kind == e.Kind
}

func pageFailure(page int, err error) *DecodeError {
	return &DecodeError{Kind: PageFailure, Page: page, Err: err}
}
