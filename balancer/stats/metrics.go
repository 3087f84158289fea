// Package stats exposes the Container Balancer's Prometheus metrics,
// following the Namespace/Subsystem registration style used throughout
// this codebase's other metrics packages.
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "storagefleet"
	Subsystem = "container_balancer"
)

var (
	// Gather is the registry the balancer's metrics are registered against.
	// A caller embedding this package in a larger process can pass Gather
	// to its own /metrics handler instead of using the global default
	// registry.
	Gather = prometheus.NewRegistry()

	NumIterations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "iterations_total",
		Help:      "Number of balancer iterations run.",
	})

	NumContainerMovesCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "container_moves_completed_total",
		Help:      "Number of container moves that completed successfully, across all iterations.",
	})

	NumContainerMovesTimeout = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "container_moves_timeout_total",
		Help:      "Number of container moves that timed out waiting for an outcome, across all iterations.",
	})

	// NumContainerMovesCompletedLatest and the other *Latest metrics below
	// are reset to zero at the start of every iteration (see ResetLatest,
	// called from iteration.Engine.Run).
	NumContainerMovesCompletedLatest = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "container_moves_completed_latest",
		Help:      "Number of container moves completed in the most recent iteration.",
	})

	NumContainerMovesTimeoutLatest = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "container_moves_timeout_latest",
		Help:      "Number of container moves that timed out in the most recent iteration.",
	})

	NumDatanodesInvolvedLatest = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "datanodes_involved_latest",
		Help:      "Number of datanodes involved in the most recent iteration.",
	})

	DataSizeMovedGB = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "data_size_moved_gb_total",
		Help:      "Cumulative GB of container data scheduled to move, across all iterations.",
	})

	DataSizeMovedGBLatest = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "data_size_moved_gb_latest",
		Help:      "GB of container data scheduled to move in the most recent iteration.",
	})

	// NumDatanodesUnbalanced and DataSizeUnbalancedGB are gauges snapshotted
	// once per iteration from the classification step (the over + under
	// utilized node count, and the larger of the over-side and under-side
	// byte totals), independent of how many moves end up being scheduled.
	NumDatanodesUnbalanced = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "datanodes_unbalanced",
		Help:      "Number of over- or under-utilized datanodes identified in the most recent iteration.",
	})

	DataSizeUnbalancedGB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: Subsystem,
		Name:      "data_size_unbalanced_gb",
		Help:      "GB out of balance in the most recent iteration: the larger of the bytes over the upper limit across over-utilized datanodes and the bytes under the lower limit across under-utilized datanodes.",
	})
)

func init() {
	Gather.MustRegister(
		NumIterations,
		NumContainerMovesCompleted,
		NumContainerMovesTimeout,
		NumContainerMovesCompletedLatest,
		NumContainerMovesTimeoutLatest,
		NumDatanodesInvolvedLatest,
		DataSizeMovedGB,
		DataSizeMovedGBLatest,
		NumDatanodesUnbalanced,
		DataSizeUnbalancedGB,
	)
}

// ResetLatest zeroes every counter suffixed Latest and every gauge, per the
// reset policy in spec §6.2: these reflect only the iteration in progress.
func ResetLatest() {
	NumContainerMovesCompletedLatest.Set(0)
	NumContainerMovesTimeoutLatest.Set(0)
	NumDatanodesInvolvedLatest.Set(0)
	DataSizeMovedGBLatest.Set(0)
	NumDatanodesUnbalanced.Set(0)
	DataSizeUnbalancedGB.Set(0)
}
