package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mockdeck/mockdeck/pkg/broadcast"
	"github.com/mockdeck/mockdeck/pkg/engine"
	"github.com/mockdeck/mockdeck/pkg/logging"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// Source is what the admin API reads from. *engine.Server satisfies it.
type Source interface {
	State() engine.State
	Mode() requestlog.Mode
	URL() string

	SubscribeToNetworkExchanges() *broadcast.Subscription[requestlog.NetworkExchange]
	SubscribeToRecordedExchanges() *broadcast.Subscription[requestlog.NetworkExchange]
	SubscribeToLogEvents() *broadcast.Subscription[logging.LogEvent]

	BufferedNetworkExchanges() []requestlog.NetworkExchange
	BufferedRecordedExchanges() []requestlog.NetworkExchange
	BufferedLogEvents() []logging.LogEvent

	ClearBufferedNetworkExchanges()
	ClearBufferedRecordedExchanges()
	ClearBufferedLogEvents()
}

// API serves the admin endpoints.
type API struct {
	src        Source
	gatherer   prometheus.Gatherer
	log        *slog.Logger
	startTime  time.Time
	writeLimit time.Duration
	handler    http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *API) {
		a.log = log
	}
}

// WithGatherer sets the registry /metrics serves. Defaults to the global
// Prometheus registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *API) {
		a.gatherer = g
	}
}

// WithWriteTimeout bounds each WebSocket frame write. A subscriber that
// cannot keep up is disconnected.
func WithWriteTimeout(d time.Duration) Option {
	return func(a *API) {
		a.writeLimit = d
	}
}

// New creates an admin API over src.
func New(src Source, opts ...Option) *API {
	a := &API{
		src:        src,
		gatherer:   prometheus.DefaultGatherer,
		log:        logging.Nop(),
		startTime:  time.Now(),
		writeLimit: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	mux := http.NewServeMux()
	a.registerRoutes(mux)
	a.handler = mux
	return a
}

// registerRoutes sets up all API routes.
func (a *API) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /exchanges", a.handleListExchanges)
	mux.HandleFunc("DELETE /exchanges", a.handleClearExchanges)
	mux.HandleFunc("GET /exchanges/stream", a.handleStreamExchanges)

	mux.HandleFunc("GET /recordings", a.handleListRecordings)
	mux.HandleFunc("DELETE /recordings", a.handleClearRecordings)
	mux.HandleFunc("GET /recordings/stream", a.handleStreamRecordings)

	mux.HandleFunc("GET /logs", a.handleListLogs)
	mux.HandleFunc("DELETE /logs", a.handleClearLogs)
	mux.HandleFunc("GET /logs/stream", a.handleStreamLogs)
}

// Handler returns the API's HTTP handler.
func (a *API) Handler() http.Handler {
	return a.handler
}

// Start listens on addr and serves in the background.
func (a *API) Start(addr string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.httpServer != nil {
		return errors.New("admin API is already running")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin API: failed to listen on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.httpServer = srv
	a.addr = ln.Addr()

	a.log.Info("starting admin API", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("admin API error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or nil when not started.
func (a *API) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// Stop shuts the listener down and drops open streams.
func (a *API) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.httpServer
	a.httpServer = nil
	a.addr = nil
	a.mu.Unlock()

	if srv == nil {
		return nil
	}
	// hijacked WebSocket connections are not tracked by Shutdown
	err := srv.Shutdown(ctx)
	return errors.Join(err, srv.Close())
}

// Uptime returns the API uptime in seconds.
func (a *API) Uptime() int {
	return int(time.Since(a.startTime).Seconds())
}
