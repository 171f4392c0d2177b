package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry-level gauges
	SubscribersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streamsched_subscribers_active",
			Help: "Number of stream subscribers currently registered",
		},
	)

	SchedulesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "streamsched_schedules_total",
			Help: "Total number of schedules by state (scheduled, suspended)",
		},
		[]string{"state"},
	)

	// Subscriber-level counters
	ObservationsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsched_observations_accepted_total",
			Help: "Observations accepted into a subscriber's monotone signal, by source",
		},
		[]string{"source"}, // "notification" or "poll"
	)

	ObservationsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsched_observations_rejected_total",
			Help: "Observations rejected for non-increasing timestamp, by source",
		},
		[]string{"source"},
	)

	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsched_polls_total",
			Help: "Fallback polls attempted, by outcome (ok, probe_error, skipped_idle)",
		},
		[]string{"outcome"},
	)

	FeedDegradations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsched_feed_degradations_total",
			Help: "Transitions into a degraded delivery mode, by mode (push_only)",
		},
		[]string{"mode"},
	)

	// Task-level counters and latency
	FiringsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamsched_firings_total",
			Help: "Total number of schedule firings dispatched",
		},
	)

	TruncationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamsched_truncations_total",
			Help: "Total number of stream truncations observed (baseSize rebased down)",
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "streamsched_dispatch_duration_seconds",
			Help:    "Time taken for a ProgramDispatcher.Run call to return",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamsched_dispatch_retries_total",
			Help: "Total number of inline refire retries after a DispatchRefireError",
		},
	)

	DispatchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamsched_dispatch_failures_total",
			Help: "Total number of firing attempts abandoned after a non-refire dispatch error",
		},
	)

	ProbeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "streamsched_probe_errors_total",
			Help: "Total number of StreamAdmin probe failures",
		},
	)

	// Admin surface metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streamsched_api_requests_total",
			Help: "Total number of admin API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "streamsched_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(SubscribersActive)
	prometheus.MustRegister(SchedulesTotal)
	prometheus.MustRegister(ObservationsAccepted)
	prometheus.MustRegister(ObservationsRejected)
	prometheus.MustRegister(PollsTotal)
	prometheus.MustRegister(FeedDegradations)
	prometheus.MustRegister(FiringsTotal)
	prometheus.MustRegister(TruncationsTotal)
	prometheus.MustRegister(DispatchDuration)
	prometheus.MustRegister(DispatchRetries)
	prometheus.MustRegister(DispatchFailures)
	prometheus.MustRegister(ProbeErrors)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
