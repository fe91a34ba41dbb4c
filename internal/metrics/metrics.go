// Package metrics exposes Prometheus collectors for the capture service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	capturePagesTotal          *prometheus.CounterVec
	captureTasksTotal          *prometheus.CounterVec
	captureActiveWorkers       prometheus.Gauge
	captureCapturingTasks      prometheus.Gauge
	captureImportingTasks      prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		capturePagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_pages_total",
				Help: "Total number of work item pages processed, labeled by outcome.",
			},
			[]string{"status"},
		)

		captureTasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "capture_tasks_total",
				Help: "Total number of capture tasks reaching a terminal report, labeled by outcome.",
			},
			[]string{"status"},
		)

		captureActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "capture_active_workers",
				Help: "Number of pool workers currently processing a work item.",
			},
		)

		captureCapturingTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "capture_capturing_tasks",
				Help: "Number of capture tasks currently executing.",
			},
		)

		captureImportingTasks = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "capture_importing_tasks",
				Help: "Number of import jobs currently executing.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given outcome.
func ObservePage(status string) {
	if capturePagesTotal != nil {
		capturePagesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveTask increments the task counter for the given terminal outcome.
func ObserveTask(status string) {
	if captureTasksTotal != nil {
		captureTasksTotal.WithLabelValues(status).Inc()
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if captureActiveWorkers != nil {
		captureActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if captureActiveWorkers != nil {
		captureActiveWorkers.Dec()
	}
}

// SetCapturingTasks mirrors the capturing counter onto a gauge.
func SetCapturingTasks(n int64) {
	if captureCapturingTasks != nil {
		captureCapturingTasks.Set(float64(n))
	}
}

// SetImportingTasks mirrors the importing counter onto a gauge.
func SetImportingTasks(n int64) {
	if captureImportingTasks != nil {
		captureImportingTasks.Set(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, httpCode(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

func httpCode(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
