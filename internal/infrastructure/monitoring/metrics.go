// Package monitoring exposes Prometheus metrics for the recorder.
package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance carries its own
// registry so tests can create metrics without collisions.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Recording metrics
	SessionActive     prometheus.Gauge
	SessionsStarted   prometheus.Counter
	SessionsStopped   prometheus.Counter
	SessionsAborted   prometheus.Counter
	ActionsRecorded   *prometheus.CounterVec
	EventsCoalesced   prometheus.Counter
	CapturesFailed    prometheus.Counter
	CaptureDuration   prometheus.Histogram
	PersistFailures   prometheus.Counter
	StaleLocksCleared prometheus.Counter

	// Event window stream metrics
	StreamConnections prometheus.Gauge
	StreamUpdates     prometheus.Counter
}

// New creates a metrics collector backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,

		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recorderd_http_requests_total",
				Help: "Total number of control API requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "recorderd_http_request_duration_seconds",
				Help:    "Control API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "path"},
		),

		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorderd_session_active",
			Help: "Whether a recording session is currently active",
		}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_sessions_started_total",
			Help: "Total number of recording sessions started",
		}),
		SessionsStopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_sessions_stopped_total",
			Help: "Total number of recording sessions stopped and committed",
		}),
		SessionsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_sessions_aborted_total",
			Help: "Total number of recording sessions aborted",
		}),
		ActionsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "recorderd_actions_recorded_total",
				Help: "Total number of actions appended to action logs",
			},
			[]string{"kind"},
		),
		EventsCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_events_coalesced_total",
			Help: "Total number of move events dropped by displacement coalescing",
		}),
		CapturesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_captures_failed_total",
			Help: "Total number of failed screenshot captures",
		}),
		CaptureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "recorderd_capture_duration_seconds",
			Help:    "Screenshot capture duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_persist_failures_total",
			Help: "Total number of failed test case persists",
		}),
		StaleLocksCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_stale_locks_cleared_total",
			Help: "Total number of stale lock markers cleared",
		}),

		StreamConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "recorderd_stream_connections",
			Help: "Number of active event window stream connections",
		}),
		StreamUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "recorderd_stream_updates_total",
			Help: "Total number of updates pushed to stream clients",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal, m.RequestDuration,
		m.SessionActive, m.SessionsStarted, m.SessionsStopped, m.SessionsAborted,
		m.ActionsRecorded, m.EventsCoalesced,
		m.CapturesFailed, m.CaptureDuration,
		m.PersistFailures, m.StaleLocksCleared,
		m.StreamConnections, m.StreamUpdates,
	)
	return m
}

// Handler returns the /metrics scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one control API request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAction records one appended action.
func (m *Metrics) RecordAction(kind string) {
	m.ActionsRecorded.WithLabelValues(kind).Inc()
}

// RecordCapture records one screenshot capture attempt.
func (m *Metrics) RecordCapture(duration time.Duration, err error) {
	m.CaptureDuration.Observe(duration.Seconds())
	if err != nil {
		m.CapturesFailed.Inc()
	}
}
