// Package metrics exposes Prometheus collectors for page fetches, rate limit
// waits and the status server.
package metrics

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors groups the collectors registered for one run. A nil
// *Collectors discards every observation.
type Collectors struct {
	pagesTotal                 *prometheus.CounterVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmapper_pages_total",
				Help: "Total number of pages fetched by handlers, labeled by family and status.",
			},
			[]string{"family", "status"},
		),
		rateLimitDelaysSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkmapper_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linkmapper_http_requests_total",
				Help: "Total number of status server requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		),
		httpRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "linkmapper_http_request_duration_seconds",
				Help:    "Histogram of status server latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"method", "route"},
		),
	}
	for _, col := range []prometheus.Collector{
		c.pagesTotal,
		c.rateLimitDelaysSeconds,
		c.httpRequestsTotal,
		c.httpRequestDurationSeconds,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("register metrics collector: %w", err)
		}
	}
	return c, nil
}

// SanitizeSite extracts a lowercase hostname. It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObservePage counts one page fetch.
func (c *Collectors) ObservePage(family, status string) {
	if c == nil {
		return
	}
	c.pagesTotal.WithLabelValues(family, status).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (c *Collectors) ObserveRateLimitDelay(host string, d time.Duration) {
	if c == nil {
		return
	}
	c.rateLimitDelaysSeconds.WithLabelValues(SanitizeSite(host)).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (c *Collectors) ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			routePattern = rctx.RoutePattern()
		}
		if routePattern == "" {
			routePattern = "unknown"
		}
		c.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
