// Copyright 2025 Takhin Data, Inc.

package metrics

import (
	"time"

	"github.com/takhin-data/partitiond/pkg/logger"
)

// ReplicaSnapshot describes one replica slot's last-known freshness for a
// single partition, as built from the replica manager's (C3) ongoing
// sync requests.
type ReplicaSnapshot struct {
	PartitionID  int
	ReplicaIndex int // 0 = owner, 1..6 = backups
	LastSyncedAt time.Time
}

// PartitionStateProvider is the narrow view of the partition service the
// metrics collector needs. It is implemented by pkg/partition's service
// type; the collector depends only on this interface so that pkg/metrics
// never imports pkg/partition directly.
type PartitionStateProvider interface {
	Version() int
	PartitionCount() int
	ReplicaCounts() map[int]int // partitionID -> assigned replica slots
	UnownedPartitionCount() int
	ReplicaSnapshots() []ReplicaSnapshot
	IsSafe() bool
	MemberCount() int
}

// Collector periodically scrapes a PartitionStateProvider and republishes
// its state as Prometheus metrics.
type Collector struct {
	provider PartitionStateProvider
	logger   *logger.Logger
	stopChan chan struct{}
	interval time.Duration
}

// NewCollector creates a metrics collector bound to the given provider.
func NewCollector(provider PartitionStateProvider, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &Collector{
		provider: provider,
		logger:   logger.Default().WithComponent("metrics-collector"),
		stopChan: make(chan struct{}),
		interval: interval,
	}
}

// Start begins periodic metrics collection.
func (c *Collector) Start() {
	go c.collectLoop()
	c.logger.Info("metrics collector started", "interval", c.interval)
}

// Stop stops the metrics collector.
func (c *Collector) Stop() {
	close(c.stopChan)
	c.logger.Info("metrics collector stopped")
}

func (c *Collector) collectLoop() {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.provider == nil {
		return
	}

	PartitionStateVersion.Set(float64(c.provider.Version()))
	PartitionsUnowned.Set(float64(c.provider.UnownedPartitionCount()))
	MemberCount.Set(float64(c.provider.MemberCount()))

	for partitionID, count := range c.provider.ReplicaCounts() {
		UpdatePartitionReplicaCount(partitionID, count)
	}

	now := time.Now()
	for _, snap := range c.provider.ReplicaSnapshots() {
		var lag time.Duration
		if !snap.LastSyncedAt.IsZero() {
			lag = now.Sub(snap.LastSyncedAt)
		}
		UpdateReplicaSyncLag(snap.PartitionID, snap.ReplicaIndex, lag)
	}

	SetClusterSafeState(c.provider.IsSafe())
}
