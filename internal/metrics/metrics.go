// Package metrics exposes Prometheus instrumentation for the streaming
// pipeline. Collectors live on a private registry so multiple instances can
// coexist in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server records into.
type Metrics struct {
	registry *prometheus.Registry

	ConnectedClients prometheus.Gauge
	FramesSent       prometheus.Counter
	FrameBytes       prometheus.Histogram
	EventsSent       prometheus.Counter
	Errors           *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rd_connected_clients",
			Help: "Number of currently connected viewers",
		}),
		FramesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rd_frames_sent_total",
			Help: "Total frames broadcast to viewers",
		}),
		FrameBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rd_frame_size_bytes",
			Help:    "Encoded frame size in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		EventsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rd_events_sent_total",
			Help: "Total events broadcast to viewers",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rd_errors_total",
			Help: "Total errors by type",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		m.ConnectedClients,
		m.FramesSent,
		m.FrameBytes,
		m.EventsSent,
		m.Errors,
	)
	return m
}

// Handler returns the scrape endpoint for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ClientConnected records a new viewer.
func (m *Metrics) ClientConnected() { m.ConnectedClients.Inc() }

// ClientDisconnected records a departed viewer.
func (m *Metrics) ClientDisconnected() { m.ConnectedClients.Dec() }

// RecordFrame records one broadcast frame of n bytes.
func (m *Metrics) RecordFrame(n int) {
	m.FramesSent.Inc()
	m.FrameBytes.Observe(float64(n))
}

// RecordError counts an error of the given kind.
func (m *Metrics) RecordError(kind string) {
	m.Errors.WithLabelValues(kind).Inc()
}
