// Package mock defines mock request definitions: which method and path a mock
// answers and the response it serves.
package mock

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// Method is an HTTP method from the closed set the server accepts.
type Method string

// Supported methods.
const (
	MethodConnect Method = http.MethodConnect
	MethodDelete  Method = http.MethodDelete
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodOptions Method = http.MethodOptions
	MethodPatch   Method = http.MethodPatch
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodTrace   Method = http.MethodTrace
)

// Methods lists every supported method in alphabetical order.
var Methods = []Method{
	MethodConnect, MethodDelete, MethodGet, MethodHead, MethodOptions,
	MethodPatch, MethodPost, MethodPut, MethodTrace,
}

// ErrUnknownMethod is returned when a method name is outside the supported set.
var ErrUnknownMethod = errors.New("unknown HTTP method")

// ParseMethod parses a method name case-insensitively.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
	return m, nil
}

// Valid reports whether m is in the supported set.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// String returns the method name.
func (m Method) String() string { return string(m) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Request is a mock definition. Method and Path identify it; no two requests
// in a RequestSet share both.
type Request struct {
	Method   Method            `json:"method" yaml:"method"`
	Path     string            `json:"path" yaml:"path"`
	Response RequestedResponse `json:"response" yaml:"response"`
}

// Key identifies a request inside a RequestSet.
type Key struct {
	Method Method
	Path   string
}

// String renders the key as "METHOD /path".
func (k Key) String() string {
	return string(k.Method) + " " + k.Path
}

// Key returns the (method, path) identity of r. The path is normalized so
// "/api/users/" and "api/users" are the same request.
func (r Request) Key() Key {
	return Key{Method: r.Method, Path: NormalizePath(r.Path)}
}

// Segments returns the path split into segments.
func (r Request) Segments() []string {
	return SplitPath(r.Path)
}

// NormalizePath returns path with exactly one leading slash and no trailing
// slash. The root path is "/".
func NormalizePath(path string) string {
	return "/" + strings.Join(SplitPath(path), "/")
}

// SplitPath splits a URL path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Header is one response header line.
type Header struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Headers is an ordered header list. Names compare case-insensitively and
// may repeat.
type Headers []Header

// Get returns the first value for name.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Values returns every value for name, in order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			out = append(out, hdr.Value)
		}
	}
	return out
}

// HTTPHeader converts the list into an http.Header, preserving order of
// repeated names.
func (h Headers) HTTPHeader() http.Header {
	out := make(http.Header, len(h))
	for _, hdr := range h {
		out.Add(hdr.Name, hdr.Value)
	}
	return out
}

// RequestedResponse is what a matched request answers with.
type RequestedResponse struct {
	Status  int           `json:"status" yaml:"status"`
	Reason  string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Headers Headers       `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    *ResponseBody `json:"body,omitempty" yaml:"body,omitempty"`
}

// ReasonPhrase returns Reason, falling back to the standard text for Status.
func (r RequestedResponse) ReasonPhrase() string {
	if r.Reason != "" {
		return r.Reason
	}
	return http.StatusText(r.Status)
}

// EffectiveBody returns the body to serve: nil when none is configured or
// when the status never carries one.
func (r RequestedResponse) EffectiveBody() *ResponseBody {
	if !StatusAllowsBody(r.Status) {
		return nil
	}
	return r.Body
}

// StatusAllowsBody reports whether a response with status may carry a body.
// 1xx, 204 No Content and 304 Not Modified never do.
func StatusAllowsBody(status int) bool {
	switch {
	case status >= 100 && status < 200:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}

// ContentType is the declared type of a response body file.
type ContentType string

// Supported content types.
const (
	ContentTypeJSON   ContentType = "json"
	ContentTypeCSS    ContentType = "css"
	ContentTypeCSV    ContentType = "csv"
	ContentTypeHTML   ContentType = "html"
	ContentTypeText   ContentType = "text"
	ContentTypeXML    ContentType = "xml"
	ContentTypeCustom ContentType = "custom"
)

// ErrUnknownContentType is returned for content type names outside the closed set.
var ErrUnknownContentType = errors.New("unknown content type")

var contentTypeInfo = map[ContentType]struct {
	extension string
	mime      string
}{
	ContentTypeJSON: {".json", "application/json"},
	ContentTypeCSS:  {".css", "text/css"},
	ContentTypeCSV:  {".csv", "text/csv"},
	ContentTypeHTML: {".html", "text/html"},
	ContentTypeText: {".txt", "text/plain"},
	ContentTypeXML:  {".xml", "application/xml"},
}

// ParseContentType parses a content type name. "plain" and "txt" are
// accepted as aliases of "text".
func ParseContentType(s string) (ContentType, error) {
	ct := ContentType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case "plain", "txt":
		return ContentTypeText, nil
	case ContentTypeCustom:
		return ct, nil
	}
	if _, ok := contentTypeInfo[ct]; ok {
		return ct, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownContentType, s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ContentType) UnmarshalText(text []byte) error {
	parsed, err := ParseContentType(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Extension returns the file extension the type requires, including the dot.
// Custom has none.
func (c ContentType) Extension() string {
	return contentTypeInfo[c].extension
}

// MIMEType returns the Content-Type header value. Custom has none.
func (c ContentType) MIMEType() string {
	return contentTypeInfo[c].mime
}

// ContentTypeForExtension returns the content type whose extension is ext,
// or ContentTypeCustom when none matches.
func ContentTypeForExtension(ext string) ContentType {
	ext = strings.ToLower(ext)
	for ct, info := range contentTypeInfo {
		if info.extension == ext {
			return ct
		}
	}
	return ContentTypeCustom
}

// ErrInvalidFileFormat is returned when a body file's extension does not
// match its declared content type.
var ErrInvalidFileFormat = errors.New("response file extension does not match content type")

// ResponseBody points at the file holding a response payload.
type ResponseBody struct {
	ContentType  ContentType `json:"contentType" yaml:"contentType"`
	FileLocation string      `json:"file" yaml:"file"`
}

// IsValidFileFormat reports whether the file extension matches the content
// type. Custom bodies are always valid.
func (b ResponseBody) IsValidFileFormat() bool {
	if b.ContentType == ContentTypeCustom {
		return true
	}
	want := b.ContentType.Extension()
	return want != "" && strings.EqualFold(filepath.Ext(b.FileLocation), want)
}

// CheckFileFormat returns ErrInvalidFileFormat, with the offending path, when
// IsValidFileFormat is false.
func (b ResponseBody) CheckFileFormat() error {
	if b.IsValidFileFormat() {
		return nil
	}
	return fmt.Errorf("%w: %s is not a %s file (want %s)",
		ErrInvalidFileFormat, b.FileLocation, b.ContentType, b.ContentType.Extension())
}
