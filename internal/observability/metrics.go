package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	apiRequestsTotal     *prometheus.CounterVec
	apiLatencySeconds    *prometheus.HistogramVec
	pollTicksTotal       *prometheus.CounterVec
	busyRejectionsTotal  *prometheus.CounterVec
	storeReplacements    *prometheus.CounterVec
	evaluationsProcessed *prometheus.CounterVec
	serverRequestsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by the client and the dev server.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_api_requests_total",
			Help: "Total number of backend API calls issued by the client.",
		}, []string{"operation", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "evalsync_api_latency_seconds",
			Help:    "Latency distribution for backend API calls.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"operation"})

		pollTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_poll_ticks_total",
			Help: "Polling attempts grouped by outcome.",
		}, []string{"outcome"})

		busyRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_busy_rejections_total",
			Help: "Operations rejected client side because an identical one was in flight.",
		}, []string{"operation"})

		storeReplacements = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_store_replacements_total",
			Help: "Entity store snapshot replacements grouped by entity kind.",
		}, []string{"kind"})

		evaluationsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_server_evaluations_total",
			Help: "Submissions processed by the development grading pipeline.",
		}, []string{"status"})

		serverRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evalsync_server_requests_total",
			Help: "Requests served by the development server.",
		}, []string{"method", "route", "status"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			pollTicksTotal,
			busyRejectionsTotal,
			storeReplacements,
			evaluationsProcessed,
			serverRequestsTotal,
		)
	})
}

// APIRequests exposes the counter for client API calls.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for client API calls.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// PollTicks exposes the poll outcome counter.
func PollTicks() *prometheus.CounterVec {
	RegisterMetrics()
	return pollTicksTotal
}

// BusyRejections exposes the counter of client-side busy rejections.
func BusyRejections() *prometheus.CounterVec {
	RegisterMetrics()
	return busyRejectionsTotal
}

// StoreReplacements exposes the entity store replacement counter.
func StoreReplacements() *prometheus.CounterVec {
	RegisterMetrics()
	return storeReplacements
}

// EvaluationsProcessed exposes the dev server pipeline counter.
func EvaluationsProcessed() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsProcessed
}

// ServerRequests exposes the dev server request counter.
func ServerRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return serverRequestsTotal
}
