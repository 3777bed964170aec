// Package telemetry exposes the Prometheus metrics shared by the fetch
// layer, the crawl pipeline, and the HTTP API.
package telemetry

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_fetches_total",
			Help: "Total page fetches, labeled by source domain and status class.",
		},
		[]string{"source", "status"},
	)

	fetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_fetch_bytes_total",
			Help: "Total bytes fetched, labeled by source domain.",
		},
		[]string{"source"},
	)

	fetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prefcrawler_fetch_duration_seconds",
			Help:    "Histogram of fetch latencies, labeled by source domain.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	fetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_fetch_retries_total",
			Help: "Total fetch retries, labeled by source domain and reason.",
		},
		[]string{"source", "reason"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prefcrawler_rate_limit_delays_seconds",
			Help:    "Histogram of politeness wait durations before a fetch.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"domain"},
	)

	headlessFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_headless_fallbacks_total",
			Help: "Total fetches that escalated to the headless browser.",
		},
		[]string{"source"},
	)

	pagesScannedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_result_pages_total",
			Help: "Total search result pages consumed, labeled by source domain.",
		},
		[]string{"source"},
	)

	candidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_candidates_total",
			Help: "Total notice candidates extracted from result pages.",
		},
		[]string{"source"},
	)

	documentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_documents_total",
			Help: "Total candidate dispositions, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	oracleRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_oracle_requests_total",
			Help: "Total classification oracle calls, labeled by kind and status.",
		},
		[]string{"kind", "status"},
	)

	oracleDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prefcrawler_oracle_duration_seconds",
			Help:    "Histogram of oracle call latencies, labeled by kind.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)

	cacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prefcrawler_cache_requests_total",
			Help: "Total cache lookups, labeled by cache name and result.",
		},
		[]string{"cache", "result"},
	)

	activeSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prefcrawler_active_sources",
			Help: "Number of prefecture sources currently being crawled.",
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
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// SanitizeSite extracts the hostname from a URL for use as a label value.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one fetch attempt against a source.
func ObserveFetch(source, status string, bytesFetched int, duration time.Duration) {
	site := SanitizeSite(source)
	fetchesTotal.WithLabelValues(site, status).Inc()
	fetchDurationSeconds.WithLabelValues(site).Observe(duration.Seconds())
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveFetchRetry records a retry and its trigger (e.g. "429", "5xx",
// "network").
func ObserveFetchRetry(source, reason string) {
	fetchRetriesTotal.WithLabelValues(SanitizeSite(source), reason).Inc()
}

// ObserveRateLimitDelay records how long a fetch waited on the per-domain
// limiter and throttle.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHeadlessFallback records an escalation to the headless browser.
func ObserveHeadlessFallback(source string) {
	headlessFallbacksTotal.WithLabelValues(SanitizeSite(source)).Inc()
}

// ObserveResultPage records one consumed search result page.
func ObserveResultPage(source string) {
	pagesScannedTotal.WithLabelValues(SanitizeSite(source)).Inc()
}

// ObserveCandidates records candidates extracted from a result page.
func ObserveCandidates(source string, n int) {
	if n > 0 {
		candidatesTotal.WithLabelValues(SanitizeSite(source)).Add(float64(n))
	}
}

// ObserveOutcome records the final disposition of one candidate.
func ObserveOutcome(outcome string) {
	documentsTotal.WithLabelValues(outcome).Inc()
}

// ObserveOracle records one oracle call.
func ObserveOracle(kind, status string, duration time.Duration) {
	oracleRequestsTotal.WithLabelValues(kind, status).Inc()
	oracleDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCacheRequest records a cache lookup result.
func ObserveCacheRequest(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// IncActiveSources increments the in-flight source gauge.
func IncActiveSources() {
	activeSources.Inc()
}

// DecActiveSources decrements the in-flight source gauge.
func DecActiveSources() {
	activeSources.Dec()
}

// ObserveHTTPRequest records metrics for an API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
