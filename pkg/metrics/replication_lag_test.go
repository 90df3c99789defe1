// Copyright 2025 Takhin Data, Inc.

package metrics

import (
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReplicaSyncLagMetrics(t *testing.T) {
	tests := []struct {
		name          string
		partitionID   int
		replicaIndex  int
		lag           time.Duration
		expectedValue float64
	}{
		{
			name:          "zero lag",
			partitionID:   0,
			replicaIndex:  1,
			lag:           0,
			expectedValue: 0,
		},
		{
			name:          "small lag",
			partitionID:   1,
			replicaIndex:  2,
			lag:           100 * time.Millisecond,
			expectedValue: 0.1,
		},
		{
			name:          "large lag",
			partitionID:   2,
			replicaIndex:  3,
			lag:           10 * time.Second,
			expectedValue: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ReplicaSyncLagSeconds.Reset()

			UpdateReplicaSyncLag(tt.partitionID, tt.replicaIndex, tt.lag)

			labels := prometheus.Labels{
				"partition_id":  strconv.Itoa(tt.partitionID),
				"replica_index": strconv.Itoa(tt.replicaIndex),
			}
			gauge := ReplicaSyncLagSeconds.With(labels)
			value := testutil.ToFloat64(gauge)
			assert.InDelta(t, tt.expectedValue, value, 0.001)
		})
	}
}

func TestPartitionsLostCounter(t *testing.T) {
	before := testutil.ToFloat64(PartitionsLostTotal)
	RecordPartitionLost()
	RecordPartitionLost()
	after := testutil.ToFloat64(PartitionsLostTotal)
	assert.Equal(t, float64(2), after-before)
}

func TestMigrationMetrics(t *testing.T) {
	MigrationsTotal.Reset()
	MigrationDuration.Reset()

	RecordMigration("success", 500*time.Millisecond)
	RecordMigration("success", 1*time.Second)
	RecordMigration("failed", 200*time.Millisecond)

	successCount := testutil.ToFloat64(MigrationsTotal.WithLabelValues("success"))
	failedCount := testutil.ToFloat64(MigrationsTotal.WithLabelValues("failed"))
	assert.Equal(t, float64(2), successCount)
	assert.Equal(t, float64(1), failedCount)
}

func TestClusterSafeStateGauge(t *testing.T) {
	SetClusterSafeState(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(ClusterSafeState))

	SetClusterSafeState(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(ClusterSafeState))
}
