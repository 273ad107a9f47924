// Package observability provides logging, metrics, and tracing.
package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// EventsReceivedTotal counts events whose Writer transaction succeeded, labeled by topic.
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of events received by the Writer, by topic",
		},
		[]string{"topic"},
	)
	// EventsUniqueTotal counts events newly persisted by the Writer, by topic.
	EventsUniqueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_unique_total",
			Help: "Total number of events newly persisted, by topic",
		},
		[]string{"topic"},
	)
	// EventsDuplicateTotal counts events the Writer found already present, by topic.
	EventsDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_duplicate_total",
			Help: "Total number of events dropped as duplicates, by topic",
		},
		[]string{"topic"},
	)
	// EventsDecodeFailedTotal counts poison messages dropped by workers.
	EventsDecodeFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "events_decode_failed_total",
			Help: "Total number of queue elements that failed to decode and were dropped",
		},
	)
	// WriterDuration records the latency of a single Writer transaction.
	WriterDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "writer_duration_seconds",
			Help:    "Deduplicating writer transaction duration in seconds",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
	// QueueDepth is a best-effort gauge of the event_queue length, sampled periodically.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Approximate number of elements currently on event_queue",
		},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(EventsReceivedTotal)
	prometheus.MustRegister(EventsUniqueTotal)
	prometheus.MustRegister(EventsDuplicateTotal)
	prometheus.MustRegister(EventsDecodeFailedTotal)
	prometheus.MustRegister(WriterDuration)
	prometheus.MustRegister(QueueDepth)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// RecordWrite updates the per-outcome counters and writer latency histogram
// for a single Writer transaction.
func RecordWrite(topic string, unique bool, dur time.Duration) {
	EventsReceivedTotal.WithLabelValues(topic).Inc()
	if unique {
		EventsUniqueTotal.WithLabelValues(topic).Inc()
	} else {
		EventsDuplicateTotal.WithLabelValues(topic).Inc()
	}
	WriterDuration.Observe(dur.Seconds())
}

// RecordDecodeFailure increments the poison-message counter.
func RecordDecodeFailure() {
	EventsDecodeFailedTotal.Inc()
}

// SetQueueDepth updates the queue depth gauge.
func SetQueueDepth(n int64) {
	QueueDepth.Set(float64(n))
}
