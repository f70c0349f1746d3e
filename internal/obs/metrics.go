package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rollcall_ready",
		Help: "1 when the service passed its last readiness check.",
	})

	reportDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_report_duration_seconds",
		Help:    "Time spent loading and computing one organization report.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	reportMembers = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rollcall_report_members",
		Help:    "Members per computed organization report.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	integrityWarnings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_data_integrity_warnings_total",
			Help: "Tolerated data integrity problems found while aggregating.",
		},
		[]string{"kind"},
	)

	quotaConfigErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_quota_configuration_errors_total",
		Help: "Quotas skipped during evaluation because they are misconfigured.",
	})

	initOnce sync.Once
)

// Init registers all metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			ready,
			reportDuration, reportMembers, integrityWarnings, quotaConfigErrors,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveReport records one computed organization report.
func ObserveReport(d time.Duration, members int) {
	reportDuration.Observe(d.Seconds())
	reportMembers.Observe(float64(members))
}

// CountWarning counts one data integrity warning of kind.
func CountWarning(kind string) {
	integrityWarnings.WithLabelValues(kind).Inc()
}

// CountConfigurationErrors counts quotas skipped as misconfigured.
func CountConfigurationErrors(n int) {
	if n > 0 {
		quotaConfigErrors.Add(float64(n))
	}
}

// Instrument measures request rate, latency and concurrency. Paths are
// labelled by their chi route pattern when one matched.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := CanonicalPath(r.URL.Path)
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// idSegments precede a path segment holding an identifier.
var idSegments = map[string]bool{
	"organizations": true,
	"members":       true,
	"roles":         true,
	"quotas":        true,
	"sessions":      true,
	"events":        true,
}

// CanonicalPath replaces identifier segments with placeholders to keep label
// cardinality bounded when no route pattern is known.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return "/"
	}
	parts := strings.Split(raw, "/")
	for i := 1; i < len(parts); i++ {
		if idSegments[parts[i-1]] && parts[i] != "summary" {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
