package rasterizer

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidOption is wrapped by Options.Validate failures.
	ErrInvalidOption = errors.New("invalid render option")
	// ErrConsumed is yielded when a Run's page sequence is iterated twice.
	ErrConsumed = errors.New("page sequence already consumed")
)

// DecodeError reports a source that could not be opened as a PDF: corrupt
// bytes, a password-protected document, or a document with zero pages.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode pdf: %s: %v", e.Reason, e.Err)
	}
	return "decode pdf: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// PageRenderError reports a single page that failed to rasterize.
// Page is 1-based, matching the document's own numbering.
type PageRenderError struct {
	Page int
	Err  error
}

func (e *PageRenderError) Error() string {
	return fmt.Sprintf("render page %d: %v", e.Page, e.Err)
}

func (e *PageRenderError) Unwrap() error { return e.Err }
