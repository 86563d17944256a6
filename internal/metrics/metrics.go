// Package metrics exposes Prometheus collectors for the mirroring engine.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal           *prometheus.CounterVec
	assetsTotal          *prometheus.CounterVec
	fetchAttemptsTotal   prometheus.Counter
	fetchDurationSeconds *prometheus.HistogramVec
	frontierEntries      prometheus.Gauge
	activeWorkers        prometheus.Gauge

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waymirror_pages_total",
				Help: "Pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		assetsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waymirror_assets_total",
				Help: "Assets processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchAttemptsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "waymirror_fetch_attempts_total",
				Help: "HTTP attempts against the archive, including retries.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waymirror_fetch_duration_seconds",
				Help:    "Total fetch latency including retries, labeled by final status.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		)

		frontierEntries = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "waymirror_frontier_entries",
				Help: "Entries currently waiting in the frontier.",
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "waymirror_active_workers",
				Help: "Workers currently processing a frontier entry.",
			},
		)
	})
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one processed page with its outcome.
func ObservePage(outcome string) {
	if pagesTotal != nil {
		pagesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveAsset counts one processed asset with its outcome.
func ObserveAsset(outcome string) {
	if assetsTotal != nil {
		assetsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveFetch records one completed fetch: its final status, how many
// attempts it took, and the total latency.
func ObserveFetch(status string, attempts int, duration time.Duration) {
	if fetchAttemptsTotal == nil {
		return
	}
	fetchAttemptsTotal.Add(float64(attempts))
	fetchDurationSeconds.WithLabelValues(status).Observe(duration.Seconds())
}

// SetFrontierSize updates the frontier depth gauge.
func SetFrontierSize(n int) {
	if frontierEntries != nil {
		frontierEntries.Set(float64(n))
	}
}

// IncActiveWorkers marks one worker busy.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers marks one worker idle.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}
