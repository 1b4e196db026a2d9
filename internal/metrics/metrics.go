package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline metrics, registered on the default registry.
var (
	// SyncRuns counts finished sync runs by provider and status
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seopulse",
			Name:      "sync_runs_total",
			Help:      "Finished sync runs by provider and status",
		},
		[]string{"provider", "status"},
	)

	// RowsUpserted counts metric rows written by provider
	RowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seopulse",
			Name:      "rows_upserted_total",
			Help:      "Metric rows written through the upsert layer",
		},
		[]string{"provider"},
	)

	// ProviderErrors counts pipeline failures by provider and error code
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seopulse",
			Name:      "provider_errors_total",
			Help:      "Pipeline failures by provider and error code",
		},
		[]string{"provider", "code"},
	)

	// SyncDuration tracks sync run duration by provider
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "seopulse",
			Name:      "sync_duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider"},
	)
)

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
