package engine

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mockdeck/mockdeck/pkg/mock"
)

// Responder produces the response for one request. A returned error means no
// response was written; the caller reports the failure.
type Responder interface {
	Respond(w http.ResponseWriter, r *http.Request) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(w http.ResponseWriter, r *http.Request) error

// Respond calls f(w, r).
func (f ResponderFunc) Respond(w http.ResponseWriter, r *http.Request) error {
	return f(w, r)
}

// MockResponder answers requests from a Router.
type MockResponder struct {
	router *Router
	log    *slog.Logger
}

// NewMockResponder creates a responder over router.
func NewMockResponder(router *Router, log *slog.Logger) *MockResponder {
	if log == nil {
		log = slog.Default()
	}
	return &MockResponder{router: router, log: log}
}

// Respond implements Responder.
func (m *MockResponder) Respond(w http.ResponseWriter, r *http.Request) error {
	method := mock.Method(r.Method)
	if !method.Valid() {
		return NewRequestError(http.StatusMethodNotAllowed, fmt.Errorf("%w: %s", ErrMethodNotAllowed, r.Method))
	}

	req, ok := m.router.Resolve(method, r.URL.Path)
	if !ok {
		return NewRequestError(http.StatusNotFound, fmt.Errorf("%w: %s %s", ErrRouteNotFound, method, r.URL.Path))
	}

	m.log.Debug("matched mock", "method", method, "path", r.URL.Path, "pattern", req.Path)

	d, err := Dispatch(req.Response)
	if err != nil {
		return err
	}
	return d.WriteTo(w)
}
