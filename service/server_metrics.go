package service

import (
	"github.com/cyverse/build-cache/service/io"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promCounterForStat = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_stat_ops_total",
		Help: "The total number of stat calls",
	})

	promCounterForRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_read_ops_total",
		Help: "The total number of read stream opens",
	})

	promCounterForNotFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_not_found_total",
		Help: "The total number of lookups for absent cache files",
	})

	promCounterForStatCacheHit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_stat_cache_hit_total",
		Help: "The total number of stat cache hit",
	})

	promCounterForStatCacheMiss = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_stat_cache_miss_total",
		Help: "The total number of stat cache miss",
	})

	promCounterForTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_transactions_total",
		Help: "The total number of transactions begun",
	})

	promCounterForCommit = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_commit_ops_total",
		Help: "The total number of commit calls",
	})

	promCounterForCommitFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_commit_failures_total",
		Help: "The total number of commit calls failed in finalize",
	})

	promCounterForCommittedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_committed_files_total",
		Help: "The total number of files moved into the cache",
	})

	promCounterForCommittedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_committed_bytes_total",
		Help: "The total number of bytes moved into the cache",
	})

	promCounterForFileMoveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_file_move_failures_total",
		Help: "The total number of files failed to be moved into the cache",
	})

	promCounterForCleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_cleanup_runs_total",
		Help: "The total number of cleanup passes",
	})

	promCounterForCleanupDeletedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "build_cache_cleanup_deleted_files_total",
		Help: "The total number of files deleted by cleanup",
	})

	promGaugeForCleanupRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "build_cache_cleanup_running",
		Help: "1 while a cleanup pass is running",
	})

	promGaugeForCleanupItemsSeen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "build_cache_cleanup_items_seen",
		Help: "The number of files seen by the current or last cleanup pass",
	})

	promGaugeForCleanupCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "build_cache_cleanup_cache_size_bytes",
		Help: "The total size of files seen by the current or last cleanup pass",
	})

	promGaugeForCleanupDeleteCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "build_cache_cleanup_delete_count",
		Help: "The number of files marked for deletion by the current or last cleanup pass",
	})

	promGaugeForCleanupDeleteSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "build_cache_cleanup_delete_size_bytes",
		Help: "The size of files marked for deletion by the current or last cleanup pass",
	})
)

// PrometheusCleanupReporter exports cleanup progress as prometheus gauges
type PrometheusCleanupReporter struct{}

// NewPrometheusCleanupReporter creates a new PrometheusCleanupReporter
func NewPrometheusCleanupReporter() *PrometheusCleanupReporter {
	return &PrometheusCleanupReporter{}
}

// HandleCleanupEvent updates gauges
func (reporter *PrometheusCleanupReporter) HandleCleanupEvent(event *io.CleanupEvent) {
	switch event.Type {
	case io.CleanupEventSearchProgress, io.CleanupEventSearchFinished, io.CleanupEventDeletionFinished:
		promGaugeForCleanupItemsSeen.Set(float64(event.Status.ItemsSeen))
		promGaugeForCleanupCacheSize.Set(float64(event.Status.CacheSize))
		promGaugeForCleanupDeleteCount.Set(float64(event.Status.DeleteCount))
		promGaugeForCleanupDeleteSize.Set(float64(event.Status.DeleteSize))
	}
}

func collectCommitMetrics(result *io.CommitResult) {
	if result == nil {
		return
	}

	for _, file := range result.Committed {
		promCounterForCommittedFiles.Inc()
		promCounterForCommittedBytes.Add(float64(file.Size))
	}

	promCounterForFileMoveFailures.Add(float64(len(result.Failed)))
}

func collectCleanupMetrics(result *io.CleanupResult) {
	if result == nil || result.DryRun {
		return
	}

	promCounterForCleanupDeletedFiles.Add(float64(len(result.DeletedPaths)))
}
