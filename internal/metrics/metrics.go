// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "matching"

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_published_total",
		Help:      "Order events accepted by the ingestion pipeline.",
	}, []string{"type"})

	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Order events handled by the pipeline consumer.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Order events dropped after a processing error.",
	}, []string{"type"})

	PipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pipeline_depth",
		Help:      "Events waiting in the ingestion ring.",
	})

	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_executed_total",
		Help:      "Trades produced by the matching engine.",
	}, []string{"symbol"})

	SnapshotsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_coalesced_total",
		Help:      "Snapshots replaced by a newer one before delivery.",
	})

	SnapshotFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_publish_failures_total",
		Help:      "Snapshot deliveries that failed at a sink.",
	}, []string{"sink"})

	SettlementDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_dropped_total",
		Help:      "Trades not handed to settlement because the queue was full.",
	})

	SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "settlement_failures_total",
		Help:      "Trade deliveries that failed at a sink.",
	}, []string{"sink"})

	OrdersRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_rejected_total",
		Help:      "Orders rejected at intake validation.",
	}, []string{"reason"})
)
