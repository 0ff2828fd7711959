package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// listener
	EventsJournaled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_journaled_total",
			Help: "Decoded bridge events inserted into the journal",
		},
		[]string{"chain", "kind"},
	)

	EventsDuplicate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_duplicate_total",
			Help: "Decoded bridge events already present in the journal",
		},
		[]string{"chain"},
	)

	DecodeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_decode_failures_total",
			Help: "Bridge-relevant payloads that could not be decoded",
		},
		[]string{"chain"},
	)

	CheckpointHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_checkpoint_height",
			Help: "Highest block height fully journaled per source chain",
		},
		[]string{"chain"},
	)

	// sender
	RelayOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_relay_outcomes_total",
			Help: "Counter-chain submissions by destination chain and final status",
		},
		[]string{"chain", "status"},
	)

	RelayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_relay_duration_seconds",
			Help:    "Time from submission to inclusion on the destination chain",
			Buckets: []float64{1, 3, 6, 12, 30, 60, 120, 300},
		},
		[]string{"chain"},
	)

	// journal
	StorageRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_storage_retries_total",
			Help: "Transient storage failures that were retried",
		},
		[]string{"op"},
	)

	StorageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_storage_failures_total",
			Help: "Storage calls that failed after the retry policy gave up",
		},
		[]string{"op"},
	)

	// orchestrator
	PipelineHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_pipeline_healthy",
			Help: "Pipeline status (1=running healthy, 0=stopped or unhealthy)",
		},
		[]string{"pipeline"},
	)

	PipelineRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_pipeline_restarts_total",
			Help: "Pipeline instances re-created after turning unhealthy",
		},
		[]string{"pipeline"},
	)

	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})
)
