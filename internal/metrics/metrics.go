// SPDX-License-Identifier: MIT
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Writer metrics
	snapshotRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsvc_snapshot_runs_total",
		Help: "Snapshot publish attempts per dataset by outcome",
	}, []string{"dataset", "outcome"}) // outcome=success|failure

	snapshotRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapsvc_snapshot_rows",
		Help: "Rows in the most recent snapshot per dataset",
	}, []string{"dataset"})

	snapshotBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "snapsvc_snapshot_bytes",
		Help: "Payload size of the most recent snapshot per dataset",
	}, []string{"dataset"})

	snapshotDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "snapsvc_snapshot_duration_seconds",
		Help:    "Time to fetch and publish one snapshot",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"dataset"})

	writerRunsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapsvc_writer_runs_active",
		Help: "Whether a writer run is currently in progress (1) or not (0)",
	})

	lastRunTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snapsvc_last_run_timestamp_seconds",
		Help: "Unix time of the last completed writer run",
	})

	// Reader metrics
	readerLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsvc_reader_loads_total",
		Help: "Snapshot loads per dataset by outcome",
	}, []string{"dataset", "outcome"}) // outcome=success|failure

	cacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsvc_cache_operations_total",
		Help: "Reader cache operations by result",
	}, []string{"result"}) // result=hit|miss

	// Operational metrics
	catalogErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapsvc_catalog_errors_total",
		Help: "Catalog read or write failures",
	})

	storageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapsvc_storage_errors_total",
		Help: "Storage backend failures by operation",
	}, []string{"op"})
)

func RecordSnapshotRun(dataset string, err error, rows int, bytes int64, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	snapshotRunsTotal.WithLabelValues(dataset, outcome).Inc()
	snapshotDuration.WithLabelValues(dataset).Observe(elapsed.Seconds())
	if err == nil {
		snapshotRows.WithLabelValues(dataset).Set(float64(rows))
		snapshotBytes.WithLabelValues(dataset).Set(float64(bytes))
	}
}

func RecordWriterRunStart() { writerRunsActive.Set(1) }

func RecordWriterRunEnd() {
	writerRunsActive.Set(0)
	lastRunTimestamp.SetToCurrentTime()
}

func RecordReaderLoad(dataset string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	readerLoadsTotal.WithLabelValues(dataset, outcome).Inc()
}

func RecordCacheHit()  { cacheOperations.WithLabelValues("hit").Inc() }
func RecordCacheMiss() { cacheOperations.WithLabelValues("miss").Inc() }

func RecordCatalogError() { catalogErrors.Inc() }

func RecordStorageError(op string) { storageErrors.WithLabelValues(op).Inc() }
