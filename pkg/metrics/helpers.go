// Copyright 2025 Takhin Data, Inc.

package metrics

import (
	"strconv"
	"time"
)

// RecordRPC records metrics for a partition-service RPC operation.
func RecordRPC(operation string, duration time.Duration, errKind string) {
	RPCRequestsTotal.WithLabelValues(operation).Inc()
	RPCRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())

	if errKind != "" {
		RPCRequestErrors.WithLabelValues(operation, errKind).Inc()
	}
}

// RecordMigration records the outcome and duration of a completed migration.
func RecordMigration(outcome string, duration time.Duration) {
	MigrationsTotal.WithLabelValues(outcome).Inc()
	MigrationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// UpdatePartitionReplicaCount sets the number of assigned replica slots for
// a single partition (owner plus backups).
func UpdatePartitionReplicaCount(partitionID int, count int) {
	PartitionReplicaCount.WithLabelValues(strconv.Itoa(partitionID)).Set(float64(count))
}

// UpdateReplicaSyncLag sets the time since a replica's runtime state was
// last refreshed for a given partition and replica index (0=owner).
func UpdateReplicaSyncLag(partitionID int, replicaIndex int, lag time.Duration) {
	ReplicaSyncLagSeconds.WithLabelValues(
		strconv.Itoa(partitionID),
		strconv.Itoa(replicaIndex),
	).Set(lag.Seconds())
}

// RecordPartitionLost records a partition that lost every assigned replica.
func RecordPartitionLost() {
	PartitionsLostTotal.Inc()
}

// SetClusterSafeState updates the cluster-wide safe-state gauge.
func SetClusterSafeState(safe bool) {
	if safe {
		ClusterSafeState.Set(1)
	} else {
		ClusterSafeState.Set(0)
	}
}

// RecordMasterTakeover increments the master-takeover counter.
func RecordMasterTakeover() {
	MasterTakeoversTotal.Inc()
}
