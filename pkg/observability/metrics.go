package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ActionsTotal counts finished actions by outcome, where outcome is
	// "ok" or the error kind.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browsersteps",
			Name:      "actions_total",
			Help:      "Total number of executed browser actions",
		},
		[]string{"action", "outcome"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "browsersteps",
			Name:      "action_duration_seconds",
			Help:      "Browser action latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 13), // 10ms to ~40s
		},
		[]string{"action"},
	)

	OrphanedDownloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "browsersteps",
			Name:      "orphaned_downloads_total",
			Help:      "Downloads that started while no action was waiting for one",
		},
	)

	DownloadFallbackScans = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "browsersteps",
			Subsystem: "download",
			Name:      "fallback_scans_total",
			Help:      "Directory rescans after a saved download failed verification",
		},
		[]string{"result"}, // "found" or "missing"
	)
)

// RecordAction records one finished action.
func RecordAction(action, outcome string, elapsed time.Duration) {
	ActionsTotal.WithLabelValues(action, outcome).Inc()
	ActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// RecordOrphanedDownload counts a download nobody was waiting for.
func RecordOrphanedDownload() {
	OrphanedDownloads.Inc()
}

// RecordFallbackScan counts a verify-step rescan of the target directory.
func RecordFallbackScan(found bool) {
	result := "missing"
	if found {
		result = "found"
	}
	DownloadFallbackScans.WithLabelValues(result).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
