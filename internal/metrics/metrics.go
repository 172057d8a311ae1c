// Package metrics exposes Prometheus collectors for the discovery service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	placesTotal         prometheus.Counter
	checksTotal         *prometheus.CounterVec
	websitesResolved    *prometheus.CounterVec
	menusFound          *prometheus.CounterVec
	outboundRequests    *prometheus.CounterVec
	searchCallsTotal    *prometheus.CounterVec
	runDurationSeconds  prometheus.Histogram
	activeWorkersGauge  prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		placesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "sitefinder_places_total",
			Help: "Total restaurant places enumerated across all runs.",
		})
		checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefinder_checks_total",
			Help: "Validation attempts by target, discovery method, and outcome.",
		}, []string{"target", "method", "valid"})
		websitesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefinder_websites_resolved_total",
			Help: "Accepted websites by discovery method.",
		}, []string{"method"})
		menusFound = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefinder_menus_found_total",
			Help: "Accepted menu URLs by discovery method.",
		}, []string{"method"})
		outboundRequests = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefinder_http_requests_total",
			Help: "Outbound HTTP requests by kind and status class.",
		}, []string{"kind", "status_class"})
		searchCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sitefinder_search_calls_total",
			Help: "Search engine calls by engine and outcome.",
		}, []string{"engine", "outcome"})
		runDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sitefinder_run_duration_seconds",
			Help:    "Wall-clock duration of completed crawl runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		})
		activeWorkersGauge = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sitefinder_active_workers",
			Help: "Workers currently processing a place.",
		})
	})
}

// ObservePlaces adds n to the enumerated-place counter.
func ObservePlaces(n int) {
	Init()
	placesTotal.Add(float64(n))
}

// ObserveCheck records one validation attempt.
func ObserveCheck(target, method string, valid bool) {
	Init()
	checksTotal.WithLabelValues(target, method, strconv.FormatBool(valid)).Inc()
}

// ObserveWebsiteResolved records an accepted website.
func ObserveWebsiteResolved(method string) {
	Init()
	websitesResolved.WithLabelValues(method).Inc()
}

// ObserveMenuFound records an accepted menu URL.
func ObserveMenuFound(method string) {
	Init()
	menusFound.WithLabelValues(method).Inc()
}

// ObserveOutboundRequest records an outbound HTTP request. kind is one of
// geocode, overpass, validate, fetch, search.
func ObserveOutboundRequest(kind string, status int) {
	Init()
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	outboundRequests.WithLabelValues(kind, class).Inc()
}

// ObserveSearchCall records a search call outcome (ok, blocked, error, empty).
func ObserveSearchCall(engine, outcome string) {
	Init()
	searchCallsTotal.WithLabelValues(engine, outcome).Inc()
}

// ObserveRunDuration records a finished run's duration.
func ObserveRunDuration(d time.Duration) {
	Init()
	runDurationSeconds.Observe(d.Seconds())
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted() {
	Init()
	activeWorkersGauge.Inc()
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped() {
	Init()
	activeWorkersGauge.Dec()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}
