package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Grading metrics
	GradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangehawk_grades_total",
			Help: "Total number of graded submissions",
		},
		[]string{"scenario", "domain", "outcome"},
	)

	GradeScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rangehawk_grade_score",
			Help:    "Distribution of awarded scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
		[]string{"scenario", "domain"},
	)

	GradeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rangehawk_grade_duration_seconds",
			Help:    "Duration of a grading request in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GradeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangehawk_grade_errors_total",
			Help: "Total number of grading requests that produced no score",
		},
		[]string{"reason"},
	)

	// Generation metrics
	RowsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangehawk_rows_generated_total",
			Help: "Total number of log rows synthesized",
		},
		[]string{"scenario", "source"},
	)

	// Answer key store metrics
	KeyLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangehawk_answer_key_lookups_total",
			Help: "Total number of answer key lookups",
		},
		[]string{"status"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rangehawk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)
)

// Outcome labels a score for GradesTotal.
func Outcome(passed bool) string {
	if passed {
		return "passed"
	}
	return "partial"
}
