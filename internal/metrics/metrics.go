package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the pipeline-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wanderwoll",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwoll",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wanderwoll",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	pipelineOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwoll",
			Subsystem: "pipeline",
			Name:      "operations_total",
			Help:      "Pipeline operations by outcome (success, cached, fallback, error).",
		},
		[]string{"operation", "outcome"},
	)

	pipelineDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wanderwoll",
			Subsystem: "pipeline",
			Name:      "operation_duration_seconds",
			Help:      "Duration of pipeline operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"operation"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwoll",
			Subsystem: "pipeline",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by operation and result (hit, miss).",
		},
		[]string{"operation", "result"},
	)

	fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwoll",
			Subsystem: "pipeline",
			Name:      "fallbacks_total",
			Help:      "Fallback substitutions by operation and whether the fallback succeeded.",
		},
		[]string{"operation", "success"},
	)

	providerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wanderwoll",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Outbound provider API requests by status class.",
		},
		[]string{"provider", "method", "status"},
	)

	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wanderwoll",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound provider API requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"provider"},
	)

	connectorHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wanderwoll",
			Subsystem: "connector",
			Name:      "healthy",
			Help:      "Last observed connector health (1 healthy, 0 otherwise).",
		},
		[]string{"connector"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		pipelineOperations,
		pipelineDuration,
		cacheLookups,
		fallbacks,
		providerRequests,
		providerDuration,
		connectorHealth,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordOperation records the outcome and duration of a pipeline operation.
func RecordOperation(operation, outcome string, duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	pipelineOperations.WithLabelValues(operation, outcome).Inc()
	pipelineDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records a result cache hit or miss.
func RecordCacheLookup(operation string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(operation, result).Inc()
}

// RecordFallback records a fallback substitution attempt.
func RecordFallback(operation string, success bool) {
	fallbacks.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// RecordProviderRequest records an outbound provider call. status is the HTTP
// status code, or 0 when the request never produced a response.
func RecordProviderRequest(provider, method string, status int, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status/100) + "xx"
	}
	providerRequests.WithLabelValues(provider, strings.ToUpper(method), label).Inc()
	providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordConnectorHealth stores the last health probe result for a connector.
func RecordConnectorHealth(connector string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1
	}
	connectorHealth.WithLabelValues(connector).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
