package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_checks_total",
			Help: "Scheduled and manual check runs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "seo_check_duration_seconds",
			Help:    "Duration of check runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"kind"},
	)

	SourceResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_source_results_total",
			Help: "Settled upstream fetches by source and status",
		},
		[]string{"source", "status"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "seo_source_breaker_open",
			Help: "1 when the circuit breaker of a source is open",
		},
		[]string{"source"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_store_errors_total",
			Help: "Day-file and summary persistence errors",
		},
		[]string{"op"},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seo_alerts_total",
			Help: "Alerts generated by summary updates",
		},
		[]string{"category", "type"},
	)

	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "seo_realtime_clients",
			Help: "Connected dashboard websocket sessions",
		},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "route"},
	)
)

func RecordCheck(kind string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ChecksTotal.WithLabelValues(kind, outcome).Inc()
	CheckDuration.WithLabelValues(kind).Observe(d.Seconds())
}
