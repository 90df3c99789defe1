// Copyright 2025 Takhin Data, Inc.

package metrics

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/takhin-data/partitiond/pkg/config"
	"github.com/takhin-data/partitiond/pkg/logger"
)

var (
	// Partition table metrics
	PartitionStateVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_partition_state_version",
			Help: "Current locally applied partition state version",
		},
	)

	PartitionOwnerChangesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_partition_owner_changes_total",
			Help: "Total number of partition owner reassignments applied locally",
		},
	)

	PartitionsUnowned = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_partitions_unowned",
			Help: "Number of partitions currently without an owner",
		},
	)

	PartitionReplicaCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partitiond_partition_replica_count",
			Help: "Number of assigned replica slots (including owner) by partition",
		},
		[]string{"partition_id"},
	)

	// Migration metrics
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partitiond_migrations_total",
			Help: "Total number of migrations by outcome (success, failed)",
		},
		[]string{"outcome"},
	)

	MigrationsInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_migrations_in_progress",
			Help: "Number of migrations currently executing",
		},
	)

	MigrationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_migration_queue_depth",
			Help: "Number of migrations queued for the single-worker migration executor",
		},
	)

	MigrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partitiond_migration_duration_seconds",
			Help:    "Migration execution duration in seconds by outcome",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	// Replica health metrics
	ReplicaSyncLagSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "partitiond_replica_sync_lag_seconds",
			Help: "Time since a replica runtime state was last refreshed, by partition and replica index",
		},
		[]string{"partition_id", "replica_index"},
	)

	ReplicaStateChecksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_replica_state_checks_total",
			Help: "Total number of periodic replica state check passes run by C4",
		},
	)

	PartitionsLostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_partitions_lost_total",
			Help: "Total number of partitions that lost all their assigned replicas",
		},
	)

	ClusterSafeState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_cluster_safe_state",
			Help: "Whether the cluster is currently in a safe state for shutdown (1=safe, 0=unsafe)",
		},
	)

	// RPC metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partitiond_rpc_requests_total",
			Help: "Total number of partition-service RPC requests by operation",
		},
		[]string{"operation"},
	)

	RPCRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partitiond_rpc_request_duration_seconds",
			Help:    "Partition-service RPC processing duration in seconds by operation",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	RPCRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partitiond_rpc_request_errors_total",
			Help: "Total number of partition-service RPC errors by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	// Coordinator metrics
	MasterTakeoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_master_takeovers_total",
			Help: "Total number of times this member became master",
		},
	)

	MemberCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_member_count",
			Help: "Number of members currently known to the partition service",
		},
	)

	// Go Runtime metrics
	GoRoutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	GoThreads = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_threads",
			Help: "GOMAXPROCS: maximum number of OS threads executing Go code at once",
		},
	)

	GoMemAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_mem_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoMemTotalAllocBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_go_mem_total_alloc_bytes",
			Help: "Cumulative bytes allocated for heap objects",
		},
	)

	GoMemSysBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_mem_sys_bytes",
			Help: "Total bytes of memory obtained from the OS",
		},
	)

	GoMemHeapAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_mem_heap_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	GoMemHeapIdleBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_mem_heap_idle_bytes",
			Help: "Bytes in idle heap spans",
		},
	)

	GoMemHeapInuseBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_go_mem_heap_inuse_bytes",
			Help: "Bytes in in-use heap spans",
		},
	)

	GoGCPauseSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partitiond_go_gc_pause_seconds",
			Help:    "GC pause duration in seconds",
			Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01, .05, .1},
		},
	)

	GoGCTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_go_gc_total",
			Help: "Total number of GC runs",
		},
	)

	// Raft election metrics. Raft here is used only to elect the master;
	// these gauges/counters describe that election, not log replication.
	RaftElectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_raft_elections_total",
			Help: "Total number of leader elections initiated",
		},
	)

	RaftElectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partitiond_raft_election_duration_seconds",
			Help:    "Duration of leader elections in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 3.0, 5.0, 10.0},
		},
	)

	RaftLeaderChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_raft_leader_changes_total",
			Help: "Total number of leader changes",
		},
	)

	RaftState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partitiond_raft_state",
			Help: "Current Raft state (0=follower, 1=candidate, 2=leader)",
		},
	)

	RaftPreVoteRequestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_raft_prevote_requests_total",
			Help: "Total number of PreVote requests sent",
		},
	)

	RaftPreVoteGrantedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partitiond_raft_prevote_granted_total",
			Help: "Total number of PreVote requests granted",
		},
	)
)

type Server struct {
	config      *config.Config
	logger      *logger.Logger
	server      *http.Server
	stopChan    chan struct{}
	lastGCPause uint64
	lastNumGC   uint32
}

func New(cfg *config.Config) *Server {
	return &Server{
		config:   cfg,
		logger:   logger.Default().WithComponent("metrics"),
		stopChan: make(chan struct{}),
	}
}

func (s *Server) Start() error {
	if !s.config.Metrics.Enabled {
		s.logger.Info("metrics server disabled")
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.config.Metrics.Host, s.config.Metrics.Port)

	mux := http.NewServeMux()
	mux.Handle(s.config.Metrics.Path, promhttp.Handler())

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("starting metrics server",
		"address", addr,
		"path", s.config.Metrics.Path,
	)

	go s.collectRuntimeMetrics()

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

func (s *Server) collectRuntimeMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastTotalAlloc uint64
	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			GoRoutines.Set(float64(runtime.NumGoroutine()))
			GoThreads.Set(float64(runtime.GOMAXPROCS(0)))

			GoMemAllocBytes.Set(float64(m.Alloc))
			GoMemTotalAllocBytes.Add(float64(m.TotalAlloc - lastTotalAlloc))
			lastTotalAlloc = m.TotalAlloc
			GoMemSysBytes.Set(float64(m.Sys))
			GoMemHeapAllocBytes.Set(float64(m.HeapAlloc))
			GoMemHeapIdleBytes.Set(float64(m.HeapIdle))
			GoMemHeapInuseBytes.Set(float64(m.HeapInuse))

			if m.NumGC > s.lastNumGC {
				for i := s.lastNumGC; i < m.NumGC; i++ {
					pause := m.PauseNs[i%256]
					GoGCPauseSeconds.Observe(float64(pause) / 1e9)
					GoGCTotal.Inc()
				}
				s.lastNumGC = m.NumGC
			}

		case <-s.stopChan:
			return
		}
	}
}

func (s *Server) Stop() error {
	close(s.stopChan)
	if s.server != nil {
		s.logger.Info("stopping metrics server")
		return s.server.Close()
	}
	return nil
}
