package geoclient

import (
	"errors"
	"fmt"
)

// ErrNoMatch is returned when the API answers successfully but carries no
// result object for the request. This is not a failure: callers emit an
// all-missing output row without an error indicator for such rows.
var ErrNoMatch = errors.New("geoclient returned no matching result")

// MissingFieldError reports an input row that lacks a value needed to build
// the request. No network call is made for such a row.
type MissingFieldError struct {
	Field string // input column that was absent or empty
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required input field %q", e.Field)
}

// RemoteError reports a failed exchange with the Geoclient API: a non-2xx
// status, an unparseable response body, or a timed-out request.
type RemoteError struct {
	StatusCode int
	Body       string
	Timeout    bool
}

func (e *RemoteError) Error() string {
	if e.Timeout {
		return "geoclient request timed out"
	}
	return fmt.Sprintf("geoclient API returned status %d: %s", e.StatusCode, e.Body)
}
