package observability

import (
	nethttp "net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/searchktools/h1server/core/http"
)

// Namespace prefixes every metric name
const Namespace = "h1server"

// Latency buckets in seconds, 1ms up to 10s
var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10}

// Metrics records connection and request statistics. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	activeConns    prometheus.Gauge
	totalConns     prometheus.Counter
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	protocolErrors *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg, or on a fresh registry when
// reg is nil
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "connections",
			Name:      "active",
			Help:      "Connections currently open",
		}),
		totalConns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "connections",
			Name:      "accepted_total",
			Help:      "Connections accepted",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "requests",
			Name:      "total",
			Help:      "Responses written, by method and status code",
		}, []string{"method", "code"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "Time from parsed request head to flushed response",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		protocolErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "protocol",
			Name:      "errors_total",
			Help:      "Requests rejected before reaching a handler, by kind",
		}, []string{"kind"}),
	}
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() nethttp.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ConnOpened records an accepted connection
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.totalConns.Inc()
	m.activeConns.Inc()
}

// ConnClosed records a torn down connection
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

// ObserveRequest records one answered request
func (m *Metrics) ObserveRequest(method http.Method, code int, d time.Duration) {
	if m == nil {
		return
	}
	name := method.String()
	m.requests.WithLabelValues(name, strconv.Itoa(code)).Inc()
	m.duration.WithLabelValues(name).Observe(d.Seconds())
}

// ProtocolError records a request rejected by the parser or body reader
func (m *Metrics) ProtocolError(kind string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(kind).Inc()
}
