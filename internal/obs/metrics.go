package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iaeco_api_requests_total",
			Help: "Requests sent to the IaEco backend.",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "iaeco_api_request_duration_seconds",
			Help:    "Latency of requests sent to the IaEco backend.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	tokenRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iaeco_token_refresh_total",
			Help: "Access token refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	securityChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "iaeco_security_checks_total",
			Help: "Security poller validations by outcome.",
		},
		[]string{"outcome"},
	)

	sessionAuthenticated = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iaeco_session_authenticated",
		Help: "1 while the client holds an authenticated session.",
	})

	initOnce sync.Once
)

// Init registers the client metrics in the default registry. Safe to call twice.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(apiRequestsTotal, apiRequestDuration, tokenRefreshTotal, securityChecksTotal, sessionAuthenticated)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one backend round trip. status 0 means transport failure.
func ObserveRequest(method, path string, status int, took time.Duration) {
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	p := CanonicalPath(path)
	apiRequestDuration.WithLabelValues(method, p, code).Observe(took.Seconds())
	apiRequestsTotal.WithLabelValues(method, p, code).Inc()
}

// ObserveRefresh counts a refresh outcome ("ok", "rejected", "missing", "superseded").
func ObserveRefresh(outcome string) {
	tokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveSecurityCheck counts a poller validation outcome.
func ObserveSecurityCheck(outcome string) {
	securityChecksTotal.WithLabelValues(outcome).Inc()
}

// SetAuthenticated flips the session gauge.
func SetAuthenticated(ok bool) {
	if ok {
		sessionAuthenticated.Set(1)
		return
	}
	sessionAuthenticated.Set(0)
}

// CanonicalPath collapses numeric path segments to :id to bound label cardinality.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseInt(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
