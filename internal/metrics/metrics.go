package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the service collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adherence",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	scoreRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "engine",
			Name:      "score_requests_total",
			Help:      "Progressive score requests by outcome.",
		},
		[]string{"outcome"},
	)

	scoreDays = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "engine",
			Name:      "days_total",
			Help:      "Days walked by the recurrence, split by cached vs computed.",
		},
		[]string{"source"},
	)

	scoreConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "engine",
			Name:      "score_conflicts_total",
			Help:      "Cached daily scores that disagreed with a recomputation.",
		},
	)

	assessments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adherence",
			Subsystem: "assessment",
			Name:      "scored_total",
			Help:      "Scored assessments by category and tier.",
		},
		[]string{"category", "tier"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		scoreRequests,
		scoreDays,
		scoreConflicts,
		assessments,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordScoreRequest counts a progressive score request outcome.
func RecordScoreRequest(outcome string) {
	scoreRequests.WithLabelValues(outcome).Inc()
}

// RecordDays counts days served from cache and days freshly computed.
func RecordDays(cached, computed int) {
	if cached > 0 {
		scoreDays.WithLabelValues("cached").Add(float64(cached))
	}
	if computed > 0 {
		scoreDays.WithLabelValues("computed").Add(float64(computed))
	}
}

func RecordConflict() {
	scoreConflicts.Inc()
}

func RecordAssessment(category, tier string) {
	assessments.WithLabelValues(category, tier).Inc()
}
