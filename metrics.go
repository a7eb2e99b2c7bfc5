package wsagent

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of a server. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesIn    *prometheus.CounterVec
	framesOut   *prometheus.CounterVec
	errors      *prometheus.CounterVec
	connections *prometheus.GaugeVec
	latency     *prometheus.HistogramVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_frames_received_total",
			Help: "Total number of frames received",
		}, []string{"agent", "kind"}),
		framesOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_frames_sent_total",
			Help: "Total number of frames sent",
		}, []string{"agent", "kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wsagent_errors_total",
			Help: "Total number of rejected frames and failed handlers",
		}, []string{"agent", "kind"}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wsagent_active_connections",
			Help: "Number of open websocket connections",
		}, []string{"agent"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wsagent_handler_duration_seconds",
			Help:    "Duration of acceptor calls in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.framesIn,
		m.framesOut,
		m.errors,
		m.connections,
		m.latency,
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func frameKind(f Frame) string {
	if f.IsText() {
		return "text"
	}
	return "binary"
}

func (m *Metrics) frameIn(agent string, f Frame) {
	if m != nil {
		m.framesIn.WithLabelValues(agent, frameKind(f)).Inc()
	}
}

func (m *Metrics) frameOut(agent string, f Frame) {
	if m != nil {
		m.framesOut.WithLabelValues(agent, frameKind(f)).Inc()
	}
}

func (m *Metrics) failed(agent, kind string) {
	if m != nil {
		m.errors.WithLabelValues(agent, kind).Inc()
	}
}

func (m *Metrics) connOpened(agent string) {
	if m != nil {
		m.connections.WithLabelValues(agent).Inc()
	}
}

func (m *Metrics) connClosed(agent string) {
	if m != nil {
		m.connections.WithLabelValues(agent).Dec()
	}
}

func (m *Metrics) observe(agent string, d time.Duration) {
	if m != nil {
		m.latency.WithLabelValues(agent).Observe(d.Seconds())
	}
}
