// Package proxy forwards requests to a real upstream and records the traffic.
package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mockdeck/mockdeck/pkg/httputil"
	"github.com/mockdeck/mockdeck/pkg/mock"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// Errors reported by the recorder.
var (
	ErrInvalidBaseURL   = errors.New("base URL must be an absolute http or https URL")
	ErrMethodNotAllowed = errors.New("method not allowed")
)

// Sink receives exchanges. *broadcast.Broadcaster[requestlog.NetworkExchange]
// satisfies it.
type Sink interface {
	Send(requestlog.NetworkExchange)
}

// Metrics is the subset of engine metrics the recorder reports to.
type Metrics interface {
	ObserveRequest(mode, method string, status int, d time.Duration)
	Published(stream string)
	UpstreamFailure()
}

// Recorder is an http.Handler that forwards every request to baseURL and
// returns the upstream response verbatim.
//
// Every cycle is published to the exchange sink. Cycles that produced a real
// upstream response, and pass the filter, are also published to the
// recording sink.
type Recorder struct {
	baseURL    *url.URL
	recordings Sink
	exchanges  Sink
	client     *http.Client
	filter     *Filter
	log        *slog.Logger
	metrics    Metrics
	now        func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClient sets the HTTP client used for upstream requests.
func WithClient(c *http.Client) Option {
	return func(r *Recorder) {
		r.client = c
	}
}

// WithFilter limits which cycles are published as recordings.
func WithFilter(f *Filter) Option {
	return func(r *Recorder) {
		r.filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) {
		r.log = log
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithExchangeSink publishes every cycle, failures included, to s.
func WithExchangeSink(s Sink) Option {
	return func(r *Recorder) {
		r.exchanges = s
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder forwarding to baseURL and publishing real
// exchanges to recordings.
func NewRecorder(baseURL *url.URL, recordings Sink, opts ...Option) (*Recorder, error) {
	if baseURL == nil || !baseURL.IsAbs() || (baseURL.Scheme != "http" && baseURL.Scheme != "https") || baseURL.Host == "" {
		return nil, ErrInvalidBaseURL
	}

	r := &Recorder{
		baseURL:    baseURL,
		recordings: recordings,
		client: &http.Client{
			// redirects are part of the upstream response, not something to follow
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: slog.Default(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// BaseURL returns the upstream base URL.
func (p *Recorder) BaseURL() *url.URL {
	return p.baseURL
}

// ServeHTTP implements http.Handler.
func (p *Recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	received := p.now()

	var reqBody []byte
	if r.Body != nil && r.Body != http.NoBody {
		var err error
		reqBody, err = io.ReadAll(r.Body)
		_ = r.Body.Close()
		if err != nil {
			p.log.Warn("failed to read request body", "method", r.Method, "path", r.URL.Path, "error", err)
			reqBody = nil
		}
	}
	captured := requestlog.NewDetailedRequest(r, reqBody, received)
	target := p.TargetURL(r.URL)

	if !mock.Method(r.Method).Valid() {
		p.log.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		p.reject(w, r, captured, target, http.StatusMethodNotAllowed, fmt.Errorf("%w: %s", ErrMethodNotAllowed, r.Method))
		return
	}

	resp, err := p.forwardRequest(r, target, reqBody)
	if err != nil {
		p.fail(w, r, captured, target, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.fail(w, r, captured, target, fmt.Errorf("reading upstream response: %w", err))
		return
	}

	header := resp.Header.Clone()
	removeHopByHopHeaders(header)

	copyHeaders(w.Header(), header)
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil {
		p.log.Warn("failed to write response", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	ex := requestlog.NewNetworkExchange(requestlog.ModeRecord, captured, requestlog.DetailedResponse{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		URI:        target,
		Headers:    header,
		Body:       respBody,
		Timestamp:  p.now(),
	}, nil)

	p.log.Info("request proxied", "method", r.Method, "path", r.URL.Path, "status", resp.StatusCode, "upstream", target)
	p.observe(r.Method, ex)
	p.publish(p.exchanges, "exchanges", ex)
	if p.filter.ShouldRecord(r.Method, r.URL.Path) {
		p.publish(p.recordings, "recordings", ex)
	}
}

// TargetURL returns the upstream URL for an inbound request URL: the base URL
// followed by the original path and query.
func (p *Recorder) TargetURL(in *url.URL) string {
	base := strings.TrimSuffix(p.baseURL.String(), "/")
	target := base + in.EscapedPath()
	if in.RawQuery != "" {
		target += "?" + in.RawQuery
	}
	return target
}

// forwardRequest sends the request upstream with its method, headers and
// body unchanged, minus Host and hop-by-hop headers.
func (p *Recorder) forwardRequest(r *http.Request, target string, body []byte) (*http.Response, error) {
	var rdr io.Reader = http.NoBody
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, target, rdr)
	if err != nil {
		return nil, err
	}

	copyHeaders(outReq.Header, r.Header)
	outReq.Header.Del("Host")
	removeHopByHopHeaders(outReq.Header)

	return p.client.Do(outReq)
}

// fail answers 502 with the upstream error text. Nothing is recorded since
// there is no real response to harvest.
func (p *Recorder) fail(w http.ResponseWriter, r *http.Request, captured requestlog.DetailedRequest, target string, err error) {
	p.log.Error("upstream request failed", "method", r.Method, "path", r.URL.Path, "upstream", target, "error", err)
	if p.metrics != nil {
		p.metrics.UpstreamFailure()
	}
	p.reject(w, r, captured, target, http.StatusBadGateway, err)
}

// reject answers with a plain-text diagnostic and publishes the failed cycle
// on the exchange sink only.
func (p *Recorder) reject(w http.ResponseWriter, r *http.Request, captured requestlog.DetailedRequest, target string, status int, err error) {
	httputil.WriteText(w, status, err.Error())

	ex := requestlog.NewNetworkExchange(requestlog.ModeRecord, captured, requestlog.DetailedResponse{
		StatusCode: status,
		Reason:     http.StatusText(status),
		URI:        target,
		Timestamp:  p.now(),
	}, err)
	p.observe(r.Method, ex)
	p.publish(p.exchanges, "exchanges", ex)
}

func (p *Recorder) observe(method string, ex requestlog.NetworkExchange) {
	if p.metrics != nil {
		p.metrics.ObserveRequest(string(requestlog.ModeRecord), method, ex.Response.StatusCode, ex.Duration())
	}
}

func (p *Recorder) publish(s Sink, stream string, ex requestlog.NetworkExchange) {
	if s == nil {
		return
	}
	s.Send(ex)
	if p.metrics != nil {
		p.metrics.Published(stream)
	}
}

// reasonPhrase extracts the reason from a status line such as "200 OK".
func reasonPhrase(resp *http.Response) string {
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders removes headers that apply to a single connection.
func removeHopByHopHeaders(h http.Header) {
	hopByHopHeaders := []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailer",
		"Transfer-Encoding",
		"Upgrade",
	}

	for _, header := range hopByHopHeaders {
		h.Del(header)
	}
}
