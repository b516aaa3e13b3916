package firms

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// FetchClass categorizes why a FIRMS request produced no rows.
type FetchClass string

const (
	ClassTimeout    FetchClass = "timeout"
	ClassNetwork    FetchClass = "network"
	ClassHTTPStatus FetchClass = "http_status"
	ClassFormat     FetchClass = "format"
)

// FetchError describes a failed (date, source) request.
type FetchError struct {
	Class  FetchClass
	Status int // HTTP status for ClassHTTPStatus
	Err    error
}

func (e *FetchError) Error() string {
	if e.Class == ClassHTTPStatus {
		return fmt.Sprintf("firms %s %d: %v", e.Class, e.Status, e.Err)
	}
	return fmt.Sprintf("firms %s: %v", e.Class, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request could succeed.
func (e *FetchError) Retryable() bool {
	switch e.Class {
	case ClassTimeout, ClassNetwork:
		return true
	case ClassHTTPStatus:
		return e.Status >= http.StatusInternalServerError || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// ErrMissingHeader is returned when a CSV body lacks a required column.
var ErrMissingHeader = errors.New("csv header missing required column")

// errUpstream is returned for bodies the API uses to report errors.
var errUpstream = errors.New("upstream reported an error")

// classifyTransport turns a transport-level error into a FetchError.
func classifyTransport(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Class: ClassTimeout, Err: err}
	}
	return &FetchError{Class: ClassNetwork, Err: err}
}
