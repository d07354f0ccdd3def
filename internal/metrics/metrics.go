// Package metrics exposes Prometheus collectors for the augmentweb service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/augmentweb/internal/dataset"
)

// Intake outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	submissionsTotal           *prometheus.CounterVec
	uploadBytes                prometheus.Histogram
	clientSubmissionsTotal     *prometheus.CounterVec
	throttledTotal             prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		submissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augmentweb_submissions_total",
				Help: "Dataset submissions received on /user_input, labeled by dataset and outcome.",
			},
			[]string{"dataset", "outcome"},
		)

		uploadBytes = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "augmentweb_upload_bytes",
				Help:    "Size of accepted dataset uploads.",
				Buckets: prometheus.ExponentialBuckets(1<<20, 4, 8),
			},
		)

		clientSubmissionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "augmentweb_client_submissions_total",
				Help: "Dataset submissions sent by the client, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		throttledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "augmentweb_throttled_submissions_total",
				Help: "Submissions refused by the per-client rate limit.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// DatasetLabel bounds the dataset label to the preset literals, "upload"
// and "none". Other with an attached file counts as an upload.
func DatasetLabel(req dataset.Request) string {
	switch {
	case req.HasUpload() && req.HasDataset() && req.Dataset != dataset.PresetOther:
		return "mixed"
	case req.HasUpload():
		return "upload"
	case !req.HasDataset():
		return "none"
	case req.Dataset.Valid():
		return string(req.Dataset)
	default:
		return "unknown"
	}
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSubmission records one intake decision.
func ObserveSubmission(req dataset.Request, outcome string) {
	Init()
	submissionsTotal.WithLabelValues(DatasetLabel(req), outcome).Inc()
	if outcome == OutcomeAccepted && req.HasUpload() {
		uploadBytes.Observe(float64(req.Upload.Size()))
	}
}

// ObserveClientSubmission records the outcome of a client-side submission.
func ObserveClientSubmission(outcome string) {
	Init()
	clientSubmissionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveThrottled records a submission refused by the rate limiter.
func ObserveThrottled() {
	Init()
	throttledTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
