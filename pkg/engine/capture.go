package engine

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mockdeck/mockdeck/pkg/httputil"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// ExchangeSink receives captured exchanges.
// *broadcast.Broadcaster[requestlog.NetworkExchange] satisfies it.
type ExchangeSink interface {
	Send(requestlog.NetworkExchange)
}

// captureWriter wraps http.ResponseWriter and tees the response into an
// independent buffer.
type captureWriter struct {
	http.ResponseWriter
	statusCode  int
	reason      string
	header      http.Header
	wroteHeader bool
	body        bytes.Buffer
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

// WriteHeader snapshots the headers and status before passing them on.
func (w *captureWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.statusCode = code
		w.header = w.ResponseWriter.Header().Clone()
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.body.Write(b[:n])
	return n, err
}

// SetReason keeps the reason phrase for the captured response.
func (w *captureWriter) SetReason(reason string) {
	w.reason = reason
}

// Flush implements http.Flusher if the underlying ResponseWriter supports it.
func (w *captureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *captureWriter) response(uri string, at time.Time) requestlog.DetailedResponse {
	reason := w.reason
	if reason == "" {
		reason = http.StatusText(w.statusCode)
	}
	header := w.header
	if header == nil {
		header = w.ResponseWriter.Header().Clone()
	}
	return requestlog.DetailedResponse{
		StatusCode: w.statusCode,
		Reason:     reason,
		URI:        uri,
		Headers:    header,
		Body:       bytes.Clone(w.body.Bytes()),
		Timestamp:  at,
	}
}

// Capture is middleware that turns every request handled by a Responder
// into exactly one published NetworkExchange.
type Capture struct {
	next    Responder
	sink    ExchangeSink
	origin  requestlog.Origin
	log     *slog.Logger
	metrics *Metrics
	now     func() time.Time
}

// CaptureOption configures a Capture.
type CaptureOption func(*Capture)

// WithCaptureLogger sets the logger.
func WithCaptureLogger(log *slog.Logger) CaptureOption {
	return func(c *Capture) {
		c.log = log
	}
}

// WithCaptureMetrics sets the metrics recorder.
func WithCaptureMetrics(m *Metrics) CaptureOption {
	return func(c *Capture) {
		c.metrics = m
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) CaptureOption {
	return func(c *Capture) {
		c.now = now
	}
}

// CaptureMiddleware wraps next so each cycle is published to sink. origin is
// where the server is reachable and is used to rebuild response URIs.
func CaptureMiddleware(next Responder, sink ExchangeSink, origin requestlog.Origin, opts ...CaptureOption) *Capture {
	c := &Capture{
		next:   next,
		sink:   sink,
		origin: origin,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ServeHTTP implements http.Handler.
func (c *Capture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	received := c.now()
	body := c.readBody(r)
	req := requestlog.NewDetailedRequest(r, body, received)

	cw := newCaptureWriter(w)
	err := c.next.Respond(cw, r)
	uri := c.origin.URI(r.URL.Path, r.URL.RawQuery)

	var ex requestlog.NetworkExchange
	if err == nil {
		ex = requestlog.NewNetworkExchange(requestlog.ModeMock, req, cw.response(uri, c.now()), nil)
		c.log.Info("request served", "method", r.Method, "path", r.URL.Path, "status", cw.statusCode)
	} else {
		ex = c.fail(cw, r, req, uri, err)
	}

	c.metrics.ObserveRequest(string(requestlog.ModeMock), r.Method, ex.Response.StatusCode, ex.Duration())
	c.sink.Send(ex)
	c.metrics.Published("exchanges")
}

func (c *Capture) fail(cw *captureWriter, r *http.Request, req requestlog.DetailedRequest, uri string, err error) requestlog.NetworkExchange {
	status := StatusOf(err)
	if errors.Is(err, ErrRouteNotFound) {
		c.metrics.RouteMiss()
	}

	if cw.wroteHeader {
		// the response is already on the wire; keep what the caller saw
		status = cw.statusCode
		c.log.Error("response write failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		httputil.WriteText(cw.ResponseWriter, status, err.Error())
		c.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}

	resp := requestlog.DetailedResponse{
		StatusCode: status,
		Reason:     http.StatusText(status),
		URI:        uri,
		Timestamp:  c.now(),
	}
	return requestlog.NewNetworkExchange(requestlog.ModeMock, req, resp, err)
}

// readBody reads the request payload once and restores it for the responder.
// A read failure is logged and captured as an empty body.
func (c *Capture) readBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		c.log.Warn("failed to read request body", "method", r.Method, "path", r.URL.Path, "error", err)
		data = nil
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data
}
