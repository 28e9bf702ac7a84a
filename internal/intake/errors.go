package intake

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty             = errors.New("empty upload")
	ErrNotPDF            = errors.New("file is not a PDF")
	ErrNotImage          = errors.New("file is not an image")
	ErrUnsupportedSource = errors.New("unsupported source reference")
	ErrLocalDisabled     = errors.New("local file sources are disabled")
	ErrBlockedHost       = errors.New("source address is not allowed")
)

// OversizeInputError is returned when an upload exceeds the byte cap.
// Nothing past the cap is read.
type OversizeInputError struct {
	Limit int64
}

func (e *OversizeInputError) Error() string {
	return fmt.Sprintf("file exceeds the %s limit", humanBytes(e.Limit))
}

// TooManyPagesError is returned when preflight counts more pages than allowed.
type TooManyPagesError struct {
	Pages int
	Limit int
}

func (e *TooManyPagesError) Error() string {
	return fmt.Sprintf("document has %d pages, limit is %d", e.Pages, e.Limit)
}

// FetchError reports a remote source that could not be retrieved.
type FetchError struct {
	Ref    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.Ref, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Ref, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func humanBytes(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	default:
		return fmt.Sprintf("%d byte", n)
	}
}
