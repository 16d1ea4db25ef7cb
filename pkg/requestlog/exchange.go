package requestlog

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Mode identifies which pipeline produced an exchange.
type Mode string

// Exchange modes.
const (
	// ModeMock exchanges were answered from mock definitions.
	ModeMock Mode = "mock"
	// ModeRecord exchanges were proxied to a real upstream.
	ModeRecord Mode = "record"
)

// Origin is the scheme, host and port the server is reachable at. It is used
// to rebuild absolute URIs for captured responses.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// URI composes an absolute URI for path and rawQuery on this origin.
func (o Origin) URI(path, rawQuery string) string {
	return ComposeURI(o.Scheme, o.Host, o.Port, path, rawQuery)
}

// ComposeURI builds scheme://host:port/path?query. A zero port is omitted.
func ComposeURI(scheme, host string, port int, path, rawQuery string) string {
	if scheme == "" {
		scheme = "http"
	}
	hostport := host
	if port > 0 {
		hostport = net.JoinHostPort(host, strconv.Itoa(port))
	}
	u := url.URL{
		Scheme:   scheme,
		Host:     hostport,
		Path:     path,
		RawQuery: rawQuery,
	}
	return u.String()
}

// DetailedRequest is an immutable snapshot of an inbound request.
type DetailedRequest struct {
	Method     string      `json:"method"`
	URI        string      `json:"uri"`
	Path       string      `json:"path"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	RemoteAddr string      `json:"remoteAddr,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewDetailedRequest snapshots r. body must be the already captured request
// payload; it is copied so later mutation by the caller has no effect.
func NewDetailedRequest(r *http.Request, body []byte, at time.Time) DetailedRequest {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}

	return DetailedRequest{
		Method:     r.Method,
		URI:        u.String(),
		Path:       r.URL.Path,
		Headers:    r.Header.Clone(),
		Body:       cloneBytes(body),
		RemoteAddr: r.RemoteAddr,
		Timestamp:  at,
	}
}

// Seconds returns the capture time as seconds since the Unix epoch.
func (r DetailedRequest) Seconds() float64 {
	return epochSeconds(r.Timestamp)
}

// DetailedResponse is an immutable snapshot of what was sent back.
type DetailedResponse struct {
	StatusCode int         `json:"statusCode"`
	Reason     string      `json:"reason,omitempty"`
	URI        string      `json:"uri"`
	Headers    http.Header `json:"headers,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Seconds returns the capture time as seconds since the Unix epoch.
func (r DetailedResponse) Seconds() float64 {
	return epochSeconds(r.Timestamp)
}

// NetworkExchange pairs one request with its response or failure.
// Exchanges are never modified after they are published.
type NetworkExchange struct {
	ID       string           `json:"id"`
	Mode     Mode             `json:"mode"`
	Request  DetailedRequest  `json:"request"`
	Response DetailedResponse `json:"response"`

	// Error describes why handling failed. Empty for successful cycles.
	Error string `json:"error,omitempty"`
}

// NewNetworkExchange assembles an exchange with a fresh time-ordered ID.
// A non-nil cause marks the exchange as failed.
func NewNetworkExchange(mode Mode, req DetailedRequest, resp DetailedResponse, cause error) NetworkExchange {
	ex := NetworkExchange{
		ID:       newID(),
		Mode:     mode,
		Request:  req,
		Response: resp,
	}
	if cause != nil {
		ex.Error = cause.Error()
	}
	return ex
}

// Failed reports whether the cycle ended in a failure rather than a response.
func (e NetworkExchange) Failed() bool {
	return e.Error != ""
}

// Duration is the time between request receipt and response completion.
func (e NetworkExchange) Duration() time.Duration {
	return e.Response.Timestamp.Sub(e.Request.Timestamp)
}

// TimestampKey identifies the exchange by its two capture timestamps.
func (e NetworkExchange) TimestampKey() string {
	return fmt.Sprintf("%d-%d", e.Request.Timestamp.UnixNano(), e.Response.Timestamp.UnixNano())
}

// String renders a one-line summary such as
// "GET /api/users -> 200 OK (1.2ms)".
func (e NetworkExchange) String() string {
	reason := e.Response.Reason
	if reason == "" {
		reason = http.StatusText(e.Response.StatusCode)
	}
	s := fmt.Sprintf("%s %s -> %d %s (%s)",
		e.Request.Method, e.Request.Path, e.Response.StatusCode, reason, e.Duration().Round(time.Microsecond))
	if e.Error != "" {
		s += ": " + e.Error
	}
	return s
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
