// Package metrics holds the Prometheus collectors the server exposes on
// /metrics. Collectors register with the default registry at init through
// promauto.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcomes recorded for relation toggles.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict" // already present on add
	OutcomeMissing  = "missing"  // absent on remove, or unknown target
	OutcomeRejected = "rejected" // self-subscription
	OutcomeError    = "error"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodgram_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foodgram_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// RelationTogglesTotal covers favorites, cart entries and subscriptions.
	RelationTogglesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodgram_relation_toggles_total",
			Help: "Relation add/remove attempts by kind, action and outcome",
		},
		[]string{"kind", "action", "outcome"},
	)

	ShoppingListDownloadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foodgram_shopping_list_downloads_total",
			Help: "Shopping lists rendered for download",
		},
	)
)

// ObserveHTTPRequest records one finished request. route should be the
// router pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func RecordRelationToggle(kind, action, outcome string) {
	RelationTogglesTotal.WithLabelValues(kind, action, outcome).Inc()
}

func RecordShoppingListDownload() {
	ShoppingListDownloadsTotal.Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
