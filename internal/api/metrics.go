package api

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncgate_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncgate_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})

	changesetApplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncgate_changeset_applies_total",
		Help: "Count of applied change sets per tenant",
	}, []string{"tenant"})

	changesetChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncgate_changeset_changes_total",
		Help: "Count of individual changes applied per tenant",
	}, []string{"tenant"})

	changesetApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "syncgate_changeset_apply_duration_seconds",
		Help:    "Duration of change set applies",
		Buckets: prometheus.DefBuckets,
	})
)

// observeRequest records an HTTP request metric. Paths carry entity ids,
// so only method and status are labelled to keep cardinality bounded.
func observeRequest(method, _ string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, s).Inc()
	httpRequestDuration.WithLabelValues(method, s).Observe(duration.Seconds())
}

// observeApply records a committed change set.
func observeApply(tenantID string, changeCount int, duration time.Duration) {
	changesetApplies.WithLabelValues(tenantID).Inc()
	changesetChanges.WithLabelValues(tenantID).Add(float64(changeCount))
	changesetApplyDuration.Observe(duration.Seconds())
}
