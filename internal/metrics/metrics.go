// Package metrics exposes Prometheus collectors for the indexer.
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
	fetchesTotal       *prometheus.CounterVec
	rowsUpsertedTotal  *prometheus.CounterVec
	lockRetriesTotal   prometheus.Counter
	journalsTotal      *prometheus.CounterVec
	journalDurationSec prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call repeatedly.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_fetches_total",
				Help: "Total source fetches, labeled by unit and outcome.",
			},
			[]string{"unit", "outcome"},
		)

		rowsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_rows_upserted_total",
				Help: "Total rows upserted, labeled by table.",
			},
			[]string{"table"},
		)

		lockRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_db_lock_retries_total",
				Help: "Total storage operations retried due to lock contention.",
			},
		)

		journalsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_journals_total",
				Help: "Total journals processed, labeled by status.",
			},
			[]string{"status"},
		)

		journalDurationSec = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexer_journal_duration_seconds",
				Help:    "Histogram of per-journal crawl durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one source fetch by unit (journal, years, issues,
// articles, in_press) and outcome (ok, miss).
func ObserveFetch(unit, outcome string) {
	if fetchesTotal == nil {
		return
	}
	fetchesTotal.WithLabelValues(unit, outcome).Inc()
}

// ObserveUpsert records rows upserted into a table.
func ObserveUpsert(table string, rows int) {
	if rowsUpsertedTotal == nil || rows <= 0 {
		return
	}
	rowsUpsertedTotal.WithLabelValues(table).Add(float64(rows))
}

// ObserveLockRetry records one lock-contention retry.
func ObserveLockRetry() {
	if lockRetriesTotal == nil {
		return
	}
	lockRetriesTotal.Inc()
}

// ObserveJournal records a finished journal with its status and duration.
func ObserveJournal(status string, elapsed time.Duration) {
	if journalsTotal == nil {
		return
	}
	journalsTotal.WithLabelValues(status).Inc()
	journalDurationSec.Observe(elapsed.Seconds())
}
