// Package metrics exposes Prometheus collectors for the crawler service.
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
	crawlerChunksTotal         *prometheus.CounterVec
	crawlerAccountsTotal       prometheus.Counter
	crawlerChunkDurationSecs   prometheus.Histogram
	crawlerErrorsTotal         *prometheus.CounterVec
	crawlerListenerFailures    *prometheus.CounterVec
	crawlerAccelerated         prometheus.Gauge
	cleanerExpiredTotal        prometheus.Counter
	cleanerUpdatesTotal        prometheus.Counter
	cleanerInspectedTotal      *prometheus.CounterVec
	directoryMessagesTotal     *prometheus.CounterVec
	activeUsers                *prometheus.GaugeVec
	pushFeedbackDevicesDropped prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerChunksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_crawler_chunks_total",
				Help: "Total number of crawl chunks, labeled by outcome.",
			},
			[]string{"status"},
		)

		crawlerAccountsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "account_crawler_accounts_total",
				Help: "Total number of accounts delivered to the listener chain.",
			},
		)

		crawlerChunkDurationSecs = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "account_crawler_chunk_duration_seconds",
				Help:    "Histogram of per-chunk processing latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
		)

		crawlerErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_crawler_errors_total",
				Help: "Total crawl loop errors, labeled by kind.",
			},
			[]string{"kind"},
		)

		crawlerListenerFailures = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_crawler_listener_failures_total",
				Help: "Total recoverable listener failures, labeled by listener.",
			},
			[]string{"listener"},
		)

		crawlerAccelerated = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "account_crawler_accelerated",
				Help: "Whether accelerated crawling is enabled (1) or not (0).",
			},
		)

		cleanerExpiredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "account_cleaner_expired_total",
				Help: "Total accounts found expired by the account cleaner.",
			},
		)

		cleanerUpdatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "account_cleaner_updates_total",
				Help: "Total expired-account mutations persisted by the cleaner.",
			},
		)

		cleanerInspectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "account_cleaner_inspected_total",
				Help: "Total unexpired accounts inspected, labeled by enabled state.",
			},
			[]string{"enabled"},
		)

		directoryMessagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "directory_queue_messages_total",
				Help: "Total messages enqueued to the directory queue, labeled by action.",
			},
			[]string{"action"},
		)

		activeUsers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "active_users",
				Help: "Accounts seen within each window, labeled by platform, as of the last sweep.",
			},
			[]string{"platform", "window"},
		)

		pushFeedbackDevicesDropped = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "push_feedback_devices_disabled_total",
				Help: "Total devices disabled after aged uninstall feedback.",
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveChunk records the outcome of one crawl chunk.
func ObserveChunk(status string, accounts int, duration time.Duration) {
	crawlerChunksTotal.WithLabelValues(status).Inc()
	if accounts > 0 {
		crawlerAccountsTotal.Add(float64(accounts))
	}
	crawlerChunkDurationSecs.Observe(duration.Seconds())
}

// ObserveCrawlError counts a crawl loop error by kind.
func ObserveCrawlError(kind string) {
	crawlerErrorsTotal.WithLabelValues(kind).Inc()
}

// ObserveListenerFailure counts a recoverable listener failure.
func ObserveListenerFailure(listener string) {
	crawlerListenerFailures.WithLabelValues(listener).Inc()
}

// SetAccelerated reflects the operator acceleration toggle.
func SetAccelerated(enabled bool) {
	if enabled {
		crawlerAccelerated.Set(1)
		return
	}
	crawlerAccelerated.Set(0)
}

// ObserveExpiredAccount counts an account found expired by the cleaner.
func ObserveExpiredAccount() {
	cleanerExpiredTotal.Inc()
}

// ObserveCleanerUpdate counts a persisted expiry mutation.
func ObserveCleanerUpdate() {
	cleanerUpdatesTotal.Inc()
}

// ObserveInspectedAccount counts an unexpired account by enabled state.
func ObserveInspectedAccount(enabled bool) {
	label := "false"
	if enabled {
		label = "true"
	}
	cleanerInspectedTotal.WithLabelValues(label).Inc()
}

// ObserveDirectoryMessage counts an enqueued directory message by action.
func ObserveDirectoryMessage(action string) {
	directoryMessagesTotal.WithLabelValues(action).Inc()
}

// SetActiveUsers publishes an active-user tally for a platform and window.
func SetActiveUsers(platform, window string, count int64) {
	activeUsers.WithLabelValues(platform, window).Set(float64(count))
}

// ObserveFeedbackDeviceDisabled counts a device disabled by push feedback.
func ObserveFeedbackDeviceDisabled() {
	pushFeedbackDevicesDropped.Inc()
}
