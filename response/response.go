// Package response defines the outcome a transport produces for one
// request execution.
package response

import (
	"errors"
	"time"
)

// Outcome classifies a transport result.
type Outcome int

const (
	// Success carries a usable payload.
	Success Outcome = iota
	// Failure carries an error and an optional error payload.
	Failure
	// Canceled marks an execution stopped by its abort signal. It is not
	// an error and is never written to the cache.
	Canceled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ErrCanceled is the error attached to canceled responses.
var ErrCanceled = errors.New("response: request canceled")

// Response is the result of one transport execution.
type Response struct {
	Data     any
	Err      error
	Status   int
	Headers  map[string]string
	Outcome  Outcome
	Duration time.Duration
}

// OK builds a successful response.
func OK(data any, status int) Response {
	return Response{Data: data, Status: status, Outcome: Success}
}

// Fail builds a failed response. data is the decoded error body, if any.
func Fail(err error, data any, status int) Response {
	if err == nil {
		err = errors.New("response: request failed")
	}
	return Response{Data: data, Err: err, Status: status, Outcome: Failure}
}

// Cancel builds a canceled response. A nil cause defaults to ErrCanceled.
func Cancel(cause error) Response {
	if cause == nil {
		cause = ErrCanceled
	}
	return Response{Err: cause, Outcome: Canceled}
}

// IsSuccess reports whether the response carries a usable payload.
func (r Response) IsSuccess() bool { return r.Outcome == Success }

// IsFailure reports whether the response is an error outcome.
func (r Response) IsFailure() bool { return r.Outcome == Failure }

// IsCanceled reports whether the execution was canceled.
func (r Response) IsCanceled() bool { return r.Outcome == Canceled }
