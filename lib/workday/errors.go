package workday

import (
	"errors"
	"fmt"
)

// ErrSourceUnavailable is matched by every failed call to Workday: transport
// errors, timeouts, unexpected status codes and non-json pages.
var ErrSourceUnavailable = errors.New("workday: source unavailable")

// ResponseError describes a Workday call that did not yield a usable response.
type ResponseError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	Body   string
	// Summary is the title of an html page Workday answered with, if any.
	Summary string
	Err     error
}

func (e *ResponseError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("workday %s %s: %s", e.Method, e.Url, e.Err.Error())
	case e.Summary != "":
		return fmt.Sprintf("workday %s %s: status %d, got html page %q", e.Method, e.Url, e.Status, e.Summary)
	default:
		return fmt.Sprintf("workday %s %s: unexpected status %d", e.Method, e.Url, e.Status)
	}
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrSourceUnavailable
}
