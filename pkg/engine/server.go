package engine

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

	"github.com/mockdeck/mockdeck/pkg/broadcast"
	"github.com/mockdeck/mockdeck/pkg/config"
	"github.com/mockdeck/mockdeck/pkg/logging"
	"github.com/mockdeck/mockdeck/pkg/proxy"
	"github.com/mockdeck/mockdeck/pkg/requestlog"
)

// Default replay buffer sizes.
const (
	DefaultExchangeBufferSize  = 1000
	DefaultRecordingBufferSize = 1000
	DefaultLogBufferSize       = 500
)

// Server runs the mock or record pipeline on one listener at a time. Its
// broadcasters live as long as the Server, across any number of runs.
type Server struct {
	mu         sync.Mutex
	state      State
	mode       requestlog.Mode
	addr       net.Addr
	httpServer *http.Server
	closed     bool
	stopped    chan struct{}
	serveErr   chan error

	exchanges  *broadcast.Broadcaster[requestlog.NetworkExchange]
	recordings *broadcast.Broadcaster[requestlog.NetworkExchange]
	logEvents  *broadcast.Broadcaster[logging.LogEvent]

	log     *slog.Logger
	metrics *Metrics

	baseLogger          *slog.Logger
	eventLevel          slog.Leveler
	exchangeBufferSize  int
	recordingBufferSize int
	logBufferSize       int
	shutdownTimeout     time.Duration
	registry            prometheus.Registerer
	recordFilter        *proxy.Filter
	upstreamClient      *http.Client
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger records are written to in addition to the log
// event stream.
func WithLogger(log *slog.Logger) ServerOption {
	return func(s *Server) {
		s.baseLogger = log
	}
}

// WithLogEventLevel sets the minimum level published as log events.
// Defaults to info.
func WithLogEventLevel(level slog.Leveler) ServerOption {
	return func(s *Server) {
		s.eventLevel = level
	}
}

// WithExchangeBufferSize sets how many network exchanges are replayed to new
// subscribers. Zero or less keeps everything.
func WithExchangeBufferSize(n int) ServerOption {
	return func(s *Server) {
		s.exchangeBufferSize = n
	}
}

// WithRecordingBufferSize sets how many recorded exchanges are replayed.
func WithRecordingBufferSize(n int) ServerOption {
	return func(s *Server) {
		s.recordingBufferSize = n
	}
}

// WithLogBufferSize sets how many log events are replayed.
func WithLogBufferSize(n int) ServerOption {
	return func(s *Server) {
		s.logBufferSize = n
	}
}

// WithShutdownTimeout bounds how long Stop waits for in-flight requests.
// Zero waits indefinitely.
func WithShutdownTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithMetricsRegistry registers the engine metrics with reg.
func WithMetricsRegistry(reg prometheus.Registerer) ServerOption {
	return func(s *Server) {
		s.registry = reg
	}
}

// WithRecordFilter limits which record-mode cycles are published as recordings.
func WithRecordFilter(f *proxy.Filter) ServerOption {
	return func(s *Server) {
		s.recordFilter = f
	}
}

// WithUpstreamClient sets the HTTP client record mode forwards with.
func WithUpstreamClient(c *http.Client) ServerOption {
	return func(s *Server) {
		s.upstreamClient = c
	}
}

// NewServer creates a stopped server.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		state:               StateStopped,
		mode:                requestlog.ModeMock,
		eventLevel:          logging.LevelInfo,
		exchangeBufferSize:  DefaultExchangeBufferSize,
		recordingBufferSize: DefaultRecordingBufferSize,
		logBufferSize:       DefaultLogBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.exchanges = broadcast.New[requestlog.NetworkExchange](broadcast.WithBufferSize(s.exchangeBufferSize))
	s.recordings = broadcast.New[requestlog.NetworkExchange](broadcast.WithBufferSize(s.recordingBufferSize))
	s.logEvents = broadcast.New[logging.LogEvent](broadcast.WithBufferSize(s.logBufferSize))

	base := s.baseLogger
	if base == nil {
		base = slog.Default()
	}
	s.log = slog.New(logging.Tee(
		base.Handler(),
		logging.NewBroadcastHandler(s.logEvents, s.eventLevel),
	))

	if s.registry != nil {
		m, err := NewMetrics(s.registry)
		if err != nil {
			s.log.Warn("metrics disabled", "error", err)
		} else {
			s.metrics = m
		}
	}
	return s
}

// Start binds hostname:port from cfg and begins serving. It fails with
// ErrInstanceAlreadyRunning unless the server is stopped, and with a
// *TransportError when the address cannot be bound.
func (s *Server) Start(cfg *config.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.state != StateStopped {
		return ErrInstanceAlreadyRunning
	}
	if cfg == nil {
		return errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	s.setState(StateStarting)

	addr := cfg.Address()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.setState(StateStopped)
		terr := &TransportError{Addr: addr, Err: err}
		s.log.Error("failed to start server", "address", addr, "error", err)
		return terr
	}

	port := ln.Addr().(*net.TCPAddr).Port
	origin := requestlog.Origin{Scheme: "http", Host: cfg.Hostname, Port: port}

	handler, mode, err := s.buildHandler(cfg, origin)
	if err != nil {
		_ = ln.Close()
		s.setState(StateStopped)
		return err
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 30 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}

	s.httpServer = srv
	s.addr = ln.Addr()
	s.mode = mode
	s.stopped = make(chan struct{})
	s.serveErr = make(chan error, 1)

	go func(errc chan<- error) {
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
			errc <- err
		}
		close(errc)
	}(s.serveErr)

	s.setState(StateRunning)
	s.log.Info("server started", "address", s.addr.String(), "mode", string(mode))
	return nil
}

func (s *Server) buildHandler(cfg *config.Configuration, origin requestlog.Origin) (http.Handler, requestlog.Mode, error) {
	if cfg.RecordMode() {
		base, err := cfg.Record.URL()
		if err != nil {
			return nil, "", err
		}
		opts := []proxy.Option{
			proxy.WithLogger(s.log),
			proxy.WithExchangeSink(s.exchanges),
			proxy.WithFilter(s.recordFilter),
		}
		if s.metrics != nil {
			opts = append(opts, proxy.WithMetrics(s.metrics))
		}
		if s.upstreamClient != nil {
			opts = append(opts, proxy.WithClient(s.upstreamClient))
		}
		rec, err := proxy.NewRecorder(base, s.recordings, opts...)
		if err != nil {
			return nil, "", err
		}
		s.log.Info("record mode enabled", "upstream", base.String())
		return rec, requestlog.ModeRecord, nil
	}

	router, err := NewRouter(&cfg.Requests)
	if err != nil {
		return nil, "", err
	}
	for _, problem := range cfg.Requests.FileFormatProblems() {
		s.log.Warn("response file will fail at request time", "error", problem)
	}
	s.log.Debug("routes registered", "count", router.Len())

	responder := NewMockResponder(router, s.log)
	return CaptureMiddleware(responder, s.exchanges, origin,
		WithCaptureLogger(s.log),
		WithCaptureMetrics(s.metrics),
	), requestlog.ModeMock, nil
}

// Stop drains in-flight requests and releases the listener. Stopping a
// stopped server is a no-op; a concurrent Stop waits for the first one.
func (s *Server) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateStopping:
		done := s.stopped
		s.mu.Unlock()
		<-done
		return nil
	}

	srv := s.httpServer
	done := s.stopped
	serveErr := s.serveErr
	s.setState(StateStopping)
	s.mu.Unlock()

	ctx := context.Background()
	if s.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.shutdownTimeout)
		defer cancel()
	}

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		if cerr := srv.Close(); cerr != nil {
			errs = append(errs, fmt.Errorf("HTTP close: %w", cerr))
		}
	}
	for err := range serveErr {
		errs = append(errs, err)
	}

	s.mu.Lock()
	s.httpServer = nil
	s.addr = nil
	s.setState(StateStopped)
	close(done)
	s.mu.Unlock()

	s.log.Info("server stopped")
	return errors.Join(errs...)
}

// Restart stops the current run and starts a new one with cfg. Start is
// attempted even when Stop fails; its error is the one returned.
func (s *Server) Restart(cfg *config.Configuration) error {
	if err := s.Stop(); err != nil {
		s.log.Error("error stopping server during restart", "error", err)
	}
	return s.Start(cfg)
}

// Close stops the server and completes every stream. The server cannot be
// started again after Close returns.
func (s *Server) Close() error {
	err := s.Stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.exchanges.Complete()
	s.recordings.Complete()
	s.logEvents.Complete()
	return err
}

// setState must be called with s.mu held.
func (s *Server) setState(state State) {
	prev := s.state
	s.state = state
	logging.Trace(s.log, "server state changed", "from", prev.String(), "to", state.String())
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning reports whether the server is accepting requests.
func (s *Server) IsRunning() bool {
	return s.State() == StateRunning
}

// Addr returns the bound address, or nil when not running.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL returns the base URL of the running server, or "" when not running.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == nil {
		return ""
	}
	return "http://" + addr.String()
}

// Mode returns the mode of the current or most recent run.
func (s *Server) Mode() requestlog.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Logger returns the logger whose records are published as log events.
func (s *Server) Logger() *slog.Logger {
	return s.log
}

// SubscribeToNetworkExchanges attaches to the exchange stream. The buffered
// history is delivered first.
func (s *Server) SubscribeToNetworkExchanges() *broadcast.Subscription[requestlog.NetworkExchange] {
	return s.exchanges.Subscribe()
}

// SubscribeToRecordedExchanges attaches to the record-mode stream.
func (s *Server) SubscribeToRecordedExchanges() *broadcast.Subscription[requestlog.NetworkExchange] {
	return s.recordings.Subscribe()
}

// SubscribeToLogEvents attaches to the log event stream.
func (s *Server) SubscribeToLogEvents() *broadcast.Subscription[logging.LogEvent] {
	return s.logEvents.Subscribe()
}

// ClearBufferedNetworkExchanges empties the exchange replay buffer.
func (s *Server) ClearBufferedNetworkExchanges() {
	s.exchanges.ClearBuffer()
}

// ClearBufferedRecordedExchanges empties the recording replay buffer.
func (s *Server) ClearBufferedRecordedExchanges() {
	s.recordings.ClearBuffer()
}

// ClearBufferedLogEvents empties the log event replay buffer.
func (s *Server) ClearBufferedLogEvents() {
	s.logEvents.ClearBuffer()
}

// BufferedNetworkExchanges returns the exchange replay buffer, oldest first.
func (s *Server) BufferedNetworkExchanges() []requestlog.NetworkExchange {
	return s.exchanges.Snapshot()
}

// BufferedRecordedExchanges returns the recording replay buffer, oldest first.
func (s *Server) BufferedRecordedExchanges() []requestlog.NetworkExchange {
	return s.recordings.Snapshot()
}

// BufferedLogEvents returns the log event replay buffer, oldest first.
func (s *Server) BufferedLogEvents() []logging.LogEvent {
	return s.logEvents.Snapshot()
}
