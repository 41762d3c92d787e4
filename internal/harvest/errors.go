package harvest

import (
	"fmt"
	"net/http"
)

// FetchError is returned when a page could not be fetched: the transport
// failed or the status was not 200.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// MalformedRecordError is returned when a required field of a review node
// cannot be parsed. It aborts extraction of the whole page. Index is the
// position of the review on the page, or -1 for page-level fields.
type MalformedRecordError struct {
	URL   string
	Index int
	Field string
	Value string
	Err   error
}

func (e *MalformedRecordError) Error() string {
	msg := fmt.Sprintf("malformed page: field %q", e.Field)
	if e.Index >= 0 {
		msg = fmt.Sprintf("malformed review %d: field %q", e.Index, e.Field)
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" value %q", e.Value)
	}
	if e.URL != "" {
		msg += " on " + e.URL
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedRecordError) Unwrap() error {
	return e.Err
}

// PersistError is returned when a target's artifact could not be written.
type PersistError struct {
	Target Target
	Path   string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s to %s: %v", e.Target.Key(), e.Path, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}
