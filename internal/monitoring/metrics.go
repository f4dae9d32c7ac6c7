package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command results recorded by the executor.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultCleared = "cleared"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Command execution metrics
	CommandsTotal   *prometheus.CounterVec
	CommandDuration prometheus.Histogram
	TranscriptBytes prometheus.Counter

	// Session store metrics
	SessionsActive prometheus.Gauge
	StoreErrors    *prometheus.CounterVec

	// Interactive terminal metrics
	TermSessionsActive prometheus.Gauge
	WSConnections      prometheus.Gauge

	// Janitor metrics
	JanitorSweeps  prometheus.Counter
	JanitorPruned  prometheus.Counter
	JanitorTrimmed prometheus.Counter

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a metrics collector on the default registry.
func NewMetrics() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// New creates a metrics collector on the given registerer. Tests pass a
// fresh registry so collectors never collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "terminal_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "terminal_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_commands_total",
				Help: "Total number of commands executed",
			},
			[]string{"result"},
		),
		CommandDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "terminal_command_duration_seconds",
				Help:    "Shell command duration in seconds",
				Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30, 60},
			},
		),
		TranscriptBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_transcript_bytes_total",
				Help: "Total bytes appended to transcripts",
			},
		),

		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_sessions_active",
				Help: "Number of sessions known to the store",
			},
		),
		StoreErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "terminal_store_errors_total",
				Help: "Total number of session store errors",
			},
			[]string{"op"},
		),

		TermSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_pty_sessions_active",
				Help: "Number of live interactive PTY sessions",
			},
		),
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_ws_connections",
				Help: "Number of attached WebSocket clients",
			},
		),

		JanitorSweeps: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_janitor_sweeps_total",
				Help: "Total number of janitor sweeps",
			},
		),
		JanitorPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_janitor_pruned_total",
				Help: "Total number of sessions pruned for idleness",
			},
		),
		JanitorTrimmed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "terminal_janitor_trimmed_total",
				Help: "Total number of transcripts trimmed to the size cap",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "terminal_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}
}

// RecordHTTPRequest records metrics for one HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	if respSize > 0 {
		m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
	}
}

// RecordCommand records one executed command.
func (m *Metrics) RecordCommand(result string, duration time.Duration, outputBytes int) {
	m.CommandsTotal.WithLabelValues(result).Inc()
	m.CommandDuration.Observe(duration.Seconds())
	if outputBytes > 0 {
		m.TranscriptBytes.Add(float64(outputBytes))
	}
}

// RecordStoreError records a failed store operation.
func (m *Metrics) RecordStoreError(op string) {
	m.StoreErrors.WithLabelValues(op).Inc()
}

// RecordSweep records one janitor pass.
func (m *Metrics) RecordSweep(pruned, trimmed int) {
	m.JanitorSweeps.Inc()
	m.JanitorPruned.Add(float64(pruned))
	m.JanitorTrimmed.Add(float64(trimmed))
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
