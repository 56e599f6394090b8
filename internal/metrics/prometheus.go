package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	// Session metrics
	sessionsTotal   *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	commandsTotal   *prometheus.CounterVec
	reconnectsTotal *prometheus.CounterVec

	// Rate limit metrics
	throttlesTotal *prometheus.CounterVec

	// Download metrics
	messagesDownloadedTotal *prometheus.CounterVec
	messagesFailedTotal     *prometheus.CounterVec
	messageSizeBytes        prometheus.Histogram

	// Run metrics
	runsStartedTotal   *prometheus.CounterVec
	runsFinishedTotal  *prometheus.CounterVec
	runDurationSeconds prometheus.Histogram
}

// NewPrometheusRecorder creates a new PrometheusRecorder with all metrics registered.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	r := &PrometheusRecorder{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_imap_sessions_total",
			Help: "Total number of IMAP sessions opened.",
		}, []string{"host"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mailvault_imap_sessions_active",
			Help: "Number of currently open IMAP sessions.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_imap_commands_total",
			Help: "Total number of IMAP commands sent.",
		}, []string{"command"}),
		reconnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_imap_reconnects_total",
			Help: "Total number of IMAP reconnect attempts.",
		}, []string{"host"}),

		throttlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_throttles_total",
			Help: "Total number of server throttle responses detected.",
		}, []string{"host"}),

		messagesDownloadedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_messages_downloaded_total",
			Help: "Total number of messages downloaded.",
		}, []string{"account"}),
		messagesFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_messages_failed_total",
			Help: "Total number of per-message download failures.",
		}, []string{"account"}),
		messageSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailvault_message_size_bytes",
			Help:    "Size of downloaded messages in bytes.",
			Buckets: []float64{1024, 10240, 102400, 1048576, 10485760, 26214400, 52428800},
		}),

		runsStartedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_runs_started_total",
			Help: "Total number of backup runs started.",
		}, []string{"trigger"}),
		runsFinishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailvault_runs_finished_total",
			Help: "Total number of backup runs finished.",
		}, []string{"result"}),
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailvault_run_duration_seconds",
			Help:    "Duration of backup runs in seconds.",
			Buckets: []float64{1, 10, 30, 60, 300, 900, 1800, 3600},
		}),
	}

	// Register all metrics
	reg.MustRegister(
		r.sessionsTotal,
		r.sessionsActive,
		r.commandsTotal,
		r.reconnectsTotal,
		r.throttlesTotal,
		r.messagesDownloadedTotal,
		r.messagesFailedTotal,
		r.messageSizeBytes,
		r.runsStartedTotal,
		r.runsFinishedTotal,
		r.runDurationSeconds,
	)

	return r
}

// SessionOpened increments the session counter and active gauge.
func (r *PrometheusRecorder) SessionOpened(host string) {
	r.sessionsTotal.WithLabelValues(host).Inc()
	r.sessionsActive.Inc()
}

// SessionClosed decrements the active sessions gauge.
func (r *PrometheusRecorder) SessionClosed(host string) {
	r.sessionsActive.Dec()
}

// CommandSent increments the command counter.
func (r *PrometheusRecorder) CommandSent(command string) {
	r.commandsTotal.WithLabelValues(command).Inc()
}

// ReconnectAttempt increments the reconnect counter.
func (r *PrometheusRecorder) ReconnectAttempt(host string) {
	r.reconnectsTotal.WithLabelValues(host).Inc()
}

// ThrottleDetected increments the throttle counter.
func (r *PrometheusRecorder) ThrottleDetected(host string) {
	r.throttlesTotal.WithLabelValues(host).Inc()
}

// MessageDownloaded increments the download counter and observes message size.
func (r *PrometheusRecorder) MessageDownloaded(accountEmail string, sizeBytes int64) {
	r.messagesDownloadedTotal.WithLabelValues(accountEmail).Inc()
	r.messageSizeBytes.Observe(float64(sizeBytes))
}

// MessageFailed increments the per-message failure counter.
func (r *PrometheusRecorder) MessageFailed(accountEmail string) {
	r.messagesFailedTotal.WithLabelValues(accountEmail).Inc()
}

// RunStarted increments the run counter.
func (r *PrometheusRecorder) RunStarted(trigger string) {
	r.runsStartedTotal.WithLabelValues(trigger).Inc()
}

// RunFinished increments the finished counter and observes run duration.
func (r *PrometheusRecorder) RunFinished(result string, durationSeconds float64) {
	r.runsFinishedTotal.WithLabelValues(result).Inc()
	r.runDurationSeconds.Observe(durationSeconds)
}
