// Package httputil writes the responses mockdeck generates itself: plain-text
// diagnostics for failed exchanges and JSON bodies on the admin API.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of an admin API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteJSON encodes v with the given status. A nil v writes no body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// WriteError writes an ErrorResponse with a machine-readable code and the
// error text.
func WriteError(w http.ResponseWriter, status int, code string, err error) {
	WriteJSON(w, status, ErrorResponse{Error: code, Message: err.Error()})
}

// WriteText writes a plain-text diagnostic. Headers already set on w for the
// failed attempt are dropped so a half-built mock response does not leak into
// the error.
func WriteText(w http.ResponseWriter, status int, message string) {
	h := w.Header()
	for k := range h {
		delete(h, k)
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(message + "\n"))
}

// WriteNoContent writes a bare 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
