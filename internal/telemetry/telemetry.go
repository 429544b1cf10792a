// Package telemetry holds the Prometheus collectors and the tracer shared by
// the sync and alert pipelines.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

// Tracer is a no-op until a provider is installed with otel.SetTracerProvider.
var Tracer = otel.Tracer("github.com/AngelCh415/adsync")

var (
	// AccountSyncsTotal counts account syncs by outcome (success, failed, skipped).
	AccountSyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsync",
			Subsystem: "sync",
			Name:      "accounts_total",
			Help:      "Account syncs by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	AccountSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adsync",
			Subsystem: "sync",
			Name:      "account_duration_seconds",
			Help:      "Duration of one account sync in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)

	MetricRowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsync",
			Subsystem: "sync",
			Name:      "metric_rows_upserted_total",
			Help:      "Daily metric rows written by sync",
		},
		[]string{"platform"},
	)

	// AdapterRequestsTotal tracks outbound platform API calls.
	AdapterRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsync",
			Subsystem: "adapter",
			Name:      "requests_total",
			Help:      "Outbound platform API requests",
		},
		[]string{"platform", "status_code"},
	)

	AdapterRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "adsync",
			Subsystem: "adapter",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound platform API requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"platform"},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "adsync",
			Subsystem: "alerts",
			Name:      "created_total",
			Help:      "Alerts created by severity",
		},
		[]string{"severity"},
	)

	AlertPublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "adsync",
			Subsystem: "alerts",
			Name:      "publish_failures_total",
			Help:      "Alerts that could not be handed to the notification sink",
		},
	)
)
