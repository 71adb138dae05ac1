// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import "github.com/prometheus/client_golang/prometheus"

// AggregationOutcome labels an aggregation job's terminal state for the
// aggregation_jobs_total counter.
type AggregationOutcome string

const (
	OutcomeCommitted AggregationOutcome = "committed"
	OutcomeAborted   AggregationOutcome = "aborted"
)

// DAPMetrics is the aggregator's business-level instrumentation (spec
// SPEC_FULL.md §3.14): report intake, aggregation-job outcomes, agg-store
// merge latency, and the Leader's work-queue depth. Grounded on the
// teacher's api/metrics.Metrics shape (a struct of prometheus collectors
// built and registered in one constructor) but renamed to the DAP
// domain's own counters instead of consensus round outcomes.
type DAPMetrics struct {
	ReportsUploaded     prometheus.Counter
	ReportsRejected     *prometheus.CounterVec // label: reason
	AggregationJobsTotal *prometheus.CounterVec // label: outcome
	CollectionJobsTotal prometheus.Counter
	MergeDuration       prometheus.Histogram
	WorkQueueDepth      prometheus.Gauge
}

// NewDAPMetrics builds and registers every DAPMetrics collector against reg.
func NewDAPMetrics(reg prometheus.Registerer) (*DAPMetrics, error) {
	m := &DAPMetrics{
		ReportsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "reports_uploaded_total",
			Help:      "Total reports accepted by the reports endpoint.",
		}),
		ReportsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "reports_rejected_total",
			Help:      "Total reports rejected before storage, by reason.",
		}, []string{"reason"}),
		AggregationJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "aggregation_jobs_total",
			Help:      "Total aggregation jobs run, by terminal outcome.",
		}, []string{"outcome"}),
		CollectionJobsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dap",
			Name:      "collection_jobs_total",
			Help:      "Total collection jobs finished.",
		}),
		MergeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dap",
			Name:      "agg_store_merge_duration_seconds",
			Help:      "Latency of one AggStoreAtomicMerge call.",
			Buckets:   prometheus.DefBuckets,
		}),
		WorkQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dap",
			Name:      "work_queue_depth",
			Help:      "Current length of the Leader's global work queue.",
		}),
	}

	collectors := []prometheus.Collector{
		m.ReportsUploaded,
		m.ReportsRejected,
		m.AggregationJobsTotal,
		m.CollectionJobsTotal,
		m.MergeDuration,
		m.WorkQueueDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
