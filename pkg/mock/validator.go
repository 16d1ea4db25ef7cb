package mock

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/mockdeck/mockdeck/internal/matching"
)

// ValidationError represents a validation failure with context.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// headerNameRegex validates HTTP header names (RFC 7230).
var headerNameRegex = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+\-.^_\x60|~]+$`)

// Validate checks that r can be registered. Neither the body file's existence
// nor its extension is checked here: both fail per request when served.
func (r Request) Validate() error {
	if !r.Method.Valid() {
		return &ValidationError{Field: "method", Message: fmt.Sprintf("unsupported method %q", r.Method), Err: ErrUnknownMethod}
	}
	if _, err := matching.ParsePattern(r.Path); err != nil {
		return &ValidationError{Field: "path", Message: err.Error(), Err: err}
	}
	return r.Response.Validate()
}

// Validate checks status, headers and body declaration.
func (r RequestedResponse) Validate() error {
	if r.Status < 100 || r.Status > 999 {
		return &ValidationError{Field: "response.status", Message: fmt.Sprintf("status %d out of range", r.Status)}
	}
	if r.Status < 200 {
		// net/http sends 1xx as an interim response and then a 200
		return &ValidationError{Field: "response.status", Message: fmt.Sprintf("informational status %d cannot be a final response", r.Status)}
	}

	for i, h := range r.Headers {
		if !headerNameRegex.MatchString(h.Name) {
			return &ValidationError{
				Field:   fmt.Sprintf("response.headers[%d]", i),
				Message: fmt.Sprintf("invalid header name %q", h.Name),
			}
		}
	}

	if r.Body == nil {
		return nil
	}
	if r.Body.FileLocation == "" {
		return &ValidationError{Field: "response.body.file", Message: "file is required"}
	}
	if _, err := ParseContentType(string(r.Body.ContentType)); err != nil {
		return &ValidationError{Field: "response.body.contentType", Message: err.Error(), Err: err}
	}
	return nil
}

// FileFormatProblems lists requests whose body file extension does not match
// the declared content type. These still load: serving them fails per request,
// so callers usually surface the list as warnings.
func (s *RequestSet) FileFormatProblems() []error {
	if s == nil {
		return nil
	}
	var problems []error
	for _, r := range s.items {
		if r.Response.Body == nil {
			continue
		}
		if err := r.Response.Body.CheckFileFormat(); err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", r.Key(), err))
		}
	}
	return problems
}

// IsValidationError reports whether err is, or wraps, a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NewRequest is a convenience constructor for a request without a body.
func NewRequest(method Method, path string, status int) Request {
	return Request{
		Method: method,
		Path:   path,
		Response: RequestedResponse{
			Status: status,
			Reason: http.StatusText(status),
		},
	}
}
