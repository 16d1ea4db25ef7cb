package recording

import (
	"errors"
	"fmt"
	"maps"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/mockdeck/mockdeck/pkg/mock"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// ErrNotConvertible is returned for exchanges that carry no real response.
var ErrNotConvertible = errors.New("exchange cannot be converted to a mock")

// skipResponseHeaders are headers that should not be copied from recordings
// as they are dynamically generated or managed by the server.
var skipResponseHeaders = map[string]bool{
	"Date":              true,
	"Content-Length":    true,
	"Content-Type":      true,
	"Transfer-Encoding": true,
	"Connection":        true,
	"Keep-Alive":        true,
	"Server":            true,
	"X-Powered-By":      true,
	"Age":               true,
	"Expires":           true,
	"Last-Modified":     true,
	"ETag":              true,
}

// Options configures a Converter.
type Options struct {
	// Dir receives the response payload files.
	Dir string

	// SmartPaths replaces ID-like path segments with a * wildcard.
	SmartPaths bool
}

// Converter turns recorded exchanges into mock definitions.
type Converter struct {
	opts Options
}

// NewConverter creates a converter.
func NewConverter(opts Options) *Converter {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Converter{opts: opts}
}

// Convert writes the payload of ex, if any, and returns the definition that
// replays it.
func (c *Converter) Convert(ex requestlog.NetworkExchange) (mock.Request, error) {
	if ex.Failed() || ex.Response.StatusCode == 0 {
		return mock.Request{}, fmt.Errorf("%w: %s", ErrNotConvertible, ex.String())
	}

	method, err := mock.ParseMethod(ex.Request.Method)
	if err != nil {
		return mock.Request{}, fmt.Errorf("%w: %v", ErrNotConvertible, err)
	}

	path := mock.NormalizePath(ex.Request.Path)
	if c.opts.SmartPaths {
		path = SmartPathMatcher(path)
	}

	resp := mock.RequestedResponse{
		Status: ex.Response.StatusCode,
		Reason: ex.Response.Reason,
	}
	if resp.Reason == http.StatusText(resp.Status) {
		resp.Reason = ""
	}

	ct, custom := ContentTypeFor(ex.Response.Headers.Get("Content-Type"))
	if custom != "" {
		resp.Headers = append(resp.Headers, mock.Header{Name: "Content-Type", Value: custom})
	}
	resp.Headers = append(resp.Headers, copyHeaders(ex.Response.Headers)...)

	if len(ex.Response.Body) > 0 && mock.StatusAllowsBody(resp.Status) {
		file := filepath.Join(c.opts.Dir, BodyFileName(method, path, ct, custom))
		if err := os.MkdirAll(c.opts.Dir, 0o755); err != nil {
			return mock.Request{}, fmt.Errorf("failed to create %s: %w", c.opts.Dir, err)
		}
		if err := os.WriteFile(file, ex.Response.Body, 0o644); err != nil {
			return mock.Request{}, fmt.Errorf("failed to write response file: %w", err)
		}
		resp.Body = &mock.ResponseBody{ContentType: ct, FileLocation: file}
	}

	return mock.Request{Method: method, Path: path, Response: resp}, nil
}

func copyHeaders(h http.Header) mock.Headers {
	var out mock.Headers
	for _, name := range slices.Sorted(maps.Keys(h)) {
		if skipResponseHeaders[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range h[name] {
			out = append(out, mock.Header{Name: name, Value: v})
		}
	}
	return out
}

// ContentTypeFor maps a Content-Type header value onto a body content type.
// Values outside the known set map to custom; the original header value is
// then returned as well so it can be replayed verbatim.
func ContentTypeFor(header string) (mock.ContentType, string) {
	if header == "" {
		return mock.ContentTypeCustom, ""
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return mock.ContentTypeCustom, header
	}

	switch {
	case mediaType == "application/json", strings.HasSuffix(mediaType, "+json"):
		return mock.ContentTypeJSON, ""
	case mediaType == "application/xml", mediaType == "text/xml", strings.HasSuffix(mediaType, "+xml"):
		return mock.ContentTypeXML, ""
	case mediaType == "text/html":
		return mock.ContentTypeHTML, ""
	case mediaType == "text/css":
		return mock.ContentTypeCSS, ""
	case mediaType == "text/csv":
		return mock.ContentTypeCSV, ""
	case mediaType == "text/plain":
		return mock.ContentTypeText, ""
	}
	return mock.ContentTypeCustom, header
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BodyFileName derives a stable file name for a definition's payload, such
// as "get_api_users.json".
func BodyFileName(method mock.Method, path string, ct mock.ContentType, customType string) string {
	slug := strings.Trim(unsafeFileChars.ReplaceAllString(strings.ReplaceAll(path, "*", "any"), "_"), "_")
	if slug == "" {
		slug = "root"
	}
	name := strings.ToLower(string(method)) + "_" + slug

	ext := ct.Extension()
	if ct == mock.ContentTypeCustom {
		ext = ".bin"
		if customType != "" {
			if exts, err := mime.ExtensionsByType(customType); err == nil && len(exts) > 0 {
				ext = exts[0]
			}
		}
	}
	return name + ext
}

// SmartPathMatcher converts a concrete path to a pattern by replacing ID-like
// segments with *. For example /users/123 becomes /users/*.
func SmartPathMatcher(path string) string {
	segments := mock.SplitPath(path)
	for i, segment := range segments {
		if isUUID(segment) || isNumericID(segment) || isAlphanumericID(segment) {
			segments[i] = "*"
		}
	}
	return "/" + strings.Join(segments, "/")
}

// UUID regex pattern
var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

func isUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

func isNumericID(s string) bool {
	if len(s) == 0 {
		return false
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// Patterns for alphanumeric IDs (hashes, base64, etc.)
var alphanumericIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{16,}$|^[0-9a-zA-Z_-]{20,}$`)

// isAlphanumericID checks if a string looks like a hash or encoded ID.
func isAlphanumericID(s string) bool {
	return len(s) >= 16 && alphanumericIDPattern.MatchString(s)
}
