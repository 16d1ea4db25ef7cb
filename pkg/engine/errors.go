package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors.
var (
	// ErrInstanceAlreadyRunning is returned by Start when the server is not stopped.
	ErrInstanceAlreadyRunning = errors.New("server instance is already running")

	// ErrServerClosed is returned by Start after Close.
	ErrServerClosed = errors.New("server is closed")

	// ErrRouteNotFound means no mock definition matches the request path.
	ErrRouteNotFound = errors.New("no mock matches the request")

	// ErrMethodNotAllowed means the request method is outside the supported set.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// TransportError reports a failure to bind the listening socket.
type TransportError struct {
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failed to listen on %s: %v", e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RequestError is a per-request failure carrying the status returned to the
// caller.
type RequestError struct {
	Status int
	Err    error
}

// NewRequestError creates a RequestError.
func NewRequestError(status int, err error) *RequestError {
	return &RequestError{Status: status, Err: err}
}

func (e *RequestError) Error() string {
	if e.Err == nil {
		return http.StatusText(e.Status)
	}
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusOf returns the status a failure maps to: the RequestError status when
// err is one, 500 otherwise.
func StatusOf(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Status > 0 {
		return reqErr.Status
	}
	return http.StatusInternalServerError
}
