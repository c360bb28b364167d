package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookflow",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookflow",
			Name:      "availability_queries_total",
			Help:      "Availability resolutions by vertical and outcome.",
		},
		[]string{"vertical", "outcome"},
	)

	staleResponses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bookflow",
			Name:      "stale_availability_discarded_total",
			Help:      "Availability responses discarded because the selection moved on.",
		},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookflow",
			Name:      "submissions_total",
			Help:      "Booking submissions by payment branch and outcome.",
		},
		[]string{"branch", "outcome"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bookflow",
			Name:      "active_sessions",
			Help:      "Live booking sessions held in memory.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, availabilityQueries, staleResponses, submissions, activeSessions)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncAvailability counts one availability resolution.
func IncAvailability(vertical, outcome string) {
	availabilityQueries.WithLabelValues(vertical, outcome).Inc()
}

// IncStaleDiscard counts one availability response thrown away on epoch mismatch.
func IncStaleDiscard() {
	staleResponses.Inc()
}

// IncSubmission counts one submission attempt.
func IncSubmission(branch, outcome string) {
	submissions.WithLabelValues(branch, outcome).Inc()
}

// SetActiveSessions reports the current number of live sessions.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}
