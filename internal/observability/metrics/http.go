package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	intentTotal          *prometheus.CounterVec
	retrievalTotal       *prometheus.CounterVec
	retrievalNoContext   *prometheus.CounterVec
	retrievedChunks      *prometheus.HistogramVec
	retrievalDuration    *prometheus.HistogramVec
	cacheLookupsTotal    *prometheus.CounterVec
	cacheResidentEntries *prometheus.GaugeVec
	breakerState         *prometheus.GaugeVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villabot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "villabot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "villabot",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	intentTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villabot",
			Subsystem: "pipeline",
			Name:      "intent_total",
			Help:      "Intent classifications by resolved intent and response decision.",
		},
		[]string{"service", "intent", "responded"},
	)
	retrievalTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villabot",
			Subsystem: "pipeline",
			Name:      "retrieval_total",
			Help:      "Total retrieval pipeline runs.",
		},
		[]string{"service"},
	)
	retrievalNoContext := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villabot",
			Subsystem: "pipeline",
			Name:      "no_context_total",
			Help:      "Retrieval runs where nothing survived the score filter.",
		},
		[]string{"service"},
	)
	retrievedChunks := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "villabot",
			Subsystem: "pipeline",
			Name:      "context_chunks",
			Help:      "Distribution of context chunks handed to generation.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service"},
	)
	retrievalDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "villabot",
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "End-to-end retrieval pipeline duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	cacheLookupsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "villabot",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by cache name and outcome.",
		},
		[]string{"service", "cache", "outcome"},
	)
	cacheResidentEntries := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "villabot",
			Subsystem: "cache",
			Name:      "resident_entries",
			Help:      "Entries currently resident per cache.",
		},
		[]string{"service", "cache"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "villabot",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "dependency"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		intentTotal,
		retrievalTotal,
		retrievalNoContext,
		retrievedChunks,
		retrievalDuration,
		cacheLookupsTotal,
		cacheResidentEntries,
		breakerState,
	)

	return &HTTPServerMetrics{
		registry:             registry,
		requestTotal:         requestTotal,
		requestDuration:      requestDuration,
		requestInFlight:      requestInFlight,
		intentTotal:          intentTotal,
		retrievalTotal:       retrievalTotal,
		retrievalNoContext:   retrievalNoContext,
		retrievedChunks:      retrievedChunks,
		retrievalDuration:    retrievalDuration,
		cacheLookupsTotal:    cacheLookupsTotal,
		cacheResidentEntries: cacheResidentEntries,
		breakerState:         breakerState,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIntent(service, intent string, responded bool) {
	m.intentTotal.WithLabelValues(service, intent, strconv.FormatBool(responded)).Inc()
}

func (m *HTTPServerMetrics) RecordRetrieval(service string, contextChunks int, duration time.Duration) {
	m.retrievalTotal.WithLabelValues(service).Inc()
	m.retrievedChunks.WithLabelValues(service).Observe(float64(contextChunks))
	m.retrievalDuration.WithLabelValues(service).Observe(duration.Seconds())

	if contextChunks == 0 {
		m.retrievalNoContext.WithLabelValues(service).Inc()
	}
}

func (m *HTTPServerMetrics) RecordCacheLookup(service, cache string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheLookupsTotal.WithLabelValues(service, cache, outcome).Inc()
}

func (m *HTTPServerMetrics) SetCacheResident(service, cache string, entries int) {
	m.cacheResidentEntries.WithLabelValues(service, cache).Set(float64(entries))
}

func (m *HTTPServerMetrics) SetBreakerState(service, dependency string, state string) {
	var value float64
	switch state {
	case "half_open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(service, dependency).Set(value)
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
