package loop

import (
	"errors"
	"fmt"
)

// ErrDestinationRejected is matched by every failed call to Loop.
var ErrDestinationRejected = errors.New("loop: destination rejected")

// ErrMalformedAck is returned when Loop answers 200 with a body that does not
// have the expected shape.
var ErrMalformedAck = errors.New("loop: malformed acknowledgement")

type ResponseError struct {
	Method string
	Url    string
	// Status is 0 when no response was received.
	Status int
	Body   string
	// Detail is the Workday document that was being uploaded, if any.
	Detail any
	Err    error
}

func (e *ResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("loop %s %s: %s", e.Method, e.Url, e.Err.Error())
	}
	return fmt.Sprintf("loop %s %s: unexpected status %d", e.Method, e.Url, e.Status)
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

func (e *ResponseError) Is(target error) bool {
	return target == ErrDestinationRejected
}
