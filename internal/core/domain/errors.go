package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Abort is the pipeline's controlled-failure channel. It is not a generic
// fault: it carries a fully-formed response and means "stop the remaining
// stages, but still deliver this response through the sender". Application
// code raises it from normalization, dispatch, refinement, or CORS
// aggregation; the
// orchestrator recovers it and never lets it escape to the transport
// adapter. Every other error kind propagates unmodified.
type Abort struct {
	// Response is the canonical response to send in place of whatever the
	// aborted pipeline would have produced.
	Response *NormalizedResponse
	// Label optionally names the abort for logging (e.g. "auth_denied").
	Label string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (a *Abort) Error() string {
	status := 0
	if a.Response != nil {
		status = a.Response.Status
	}
	if a.Label != "" {
		return fmt.Sprintf("pipeline abort %s (status %d)", a.Label, status)
	}
	return fmt.Sprintf("pipeline abort (status %d)", status)
}

// Unwrap returns the underlying cause.
func (a *Abort) Unwrap() error {
	return a.Cause
}

// NewAbort builds an Abort carrying a response with the given status and body.
func NewAbort(status int, body any) *Abort {
	return &Abort{Response: NewNormalizedResponse(status, body)}
}

// WithLabel attaches a log label to the abort.
func (a *Abort) WithLabel(label string) *Abort {
	a.Label = label
	return a
}

// WithCause attaches an underlying error to the abort.
func (a *Abort) WithCause(err error) *Abort {
	a.Cause = err
	return a
}

// AsAbort extracts an Abort from an error chain.
func AsAbort(err error) (*Abort, bool) {
	var a *Abort
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// Conventional abort constructors for the common denial categories.

func AbortBadRequest(body any) *Abort   { return NewAbort(http.StatusBadRequest, body) }
func AbortUnauthorized(body any) *Abort { return NewAbort(http.StatusUnauthorized, body) }
func AbortForbidden(body any) *Abort    { return NewAbort(http.StatusForbidden, body) }
func AbortNotFound(body any) *Abort     { return NewAbort(http.StatusNotFound, body) }
func AbortConflict(body any) *Abort     { return NewAbort(http.StatusConflict, body) }
func AbortInternal(body any) *Abort     { return NewAbort(http.StatusInternalServerError, body) }

// HandlerNotFoundError is a configuration-class fault: the designated
// handler service declares no operation for the request's method and path.
// It indicates a missing route, not a per-request condition, and is never
// converted to an HTTP-shaped response by the pipeline.
type HandlerNotFoundError struct {
	Method string
	Path   string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for %s %s", e.Method, e.Path)
}

// NoSenderFoundError is a configuration-class fault: no registered service
// exposes a send operation, so the pipeline has no way to produce a
// transport response.
type NoSenderFoundError struct{}

func (e *NoSenderFoundError) Error() string {
	return "no sender registered: no service exposes a send operation"
}
