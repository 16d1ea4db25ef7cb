package engine

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	routeMissesTotal   prometheus.Counter
	exchangesPublished *prometheus.CounterVec
	upstreamFailures   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Collectors
// already registered by an earlier server on the same registry are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockdeck",
			Name:      "requests_total",
			Help:      "Requests handled, by mode, method and status code.",
		}, []string{"mode", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mockdeck",
			Name:      "request_duration_seconds",
			Help:      "Time from request receipt to response completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode", "method"}),
		routeMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mockdeck",
			Name:      "route_misses_total",
			Help:      "Requests that matched no mock definition.",
		}),
		exchangesPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockdeck",
			Name:      "exchanges_published_total",
			Help:      "Exchanges published to subscribers, by stream.",
		}, []string{"stream"}),
		upstreamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mockdeck",
			Name:      "upstream_failures_total",
			Help:      "Record-mode requests whose upstream could not be reached.",
		}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.requestsTotal, err = register(reg, m.requestsTotal)
	if err != nil {
		return nil, err
	}
	m.requestDuration, err = register(reg, m.requestDuration)
	if err != nil {
		return nil, err
	}
	m.routeMissesTotal, err = register(reg, m.routeMissesTotal)
	if err != nil {
		return nil, err
	}
	m.exchangesPublished, err = register(reg, m.exchangesPublished)
	if err != nil {
		return nil, err
	}
	m.upstreamFailures, err = register(reg, m.upstreamFailures)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(mode, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(mode, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(mode, method).Observe(d.Seconds())
}

// RouteMiss records a request no definition matched.
func (m *Metrics) RouteMiss() {
	if m == nil {
		return
	}
	m.routeMissesTotal.Inc()
}

// Published records an exchange sent to stream.
func (m *Metrics) Published(stream string) {
	if m == nil {
		return
	}
	m.exchangesPublished.WithLabelValues(stream).Inc()
}

// UpstreamFailure records a failed upstream round trip.
func (m *Metrics) UpstreamFailure() {
	if m == nil {
		return
	}
	m.upstreamFailures.Inc()
}
