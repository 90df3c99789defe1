// Copyright 2025 Takhin Data, Inc.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/takhin-data/partitiond/pkg/adminhttp"
	"github.com/takhin-data/partitiond/pkg/config"
	"github.com/takhin-data/partitiond/pkg/election"
	"github.com/takhin-data/partitiond/pkg/logger"
	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/metrics"
	"github.com/takhin-data/partitiond/pkg/partition"
	"github.com/takhin-data/partitiond/pkg/profiler"
	"github.com/takhin-data/partitiond/pkg/rpc"
	"github.com/takhin-data/partitiond/pkg/rpcserver"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/partitiond.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "show version information")
	nodeID := flag.String("node-id", "", "unique raft node id (defaults to the server address)")
	raftDir := flag.String("raft-dir", "data/raft", "directory for raft log/snapshot storage")
	raftBind := flag.String("raft-bind", "", "raft transport bind address (defaults to server address with port+1)")
	bootstrap := flag.Bool("bootstrap", false, "bootstrap a new single-node raft cluster")
	adminAddr := flag.String("admin-addr", "0.0.0.0:8080", "address for the read-only admin HTTP API")
	flag.Parse()

	if *showVersion {
		fmt.Printf("partitiond version %s (commit: %s, built: %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logger.SetDefault(log)

	log.Info("starting partitiond",
		"version", version,
		"commit", commit,
		"build_time", buildTime,
	)

	localAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if *nodeID == "" {
		*nodeID = localAddr
	}
	if *raftBind == "" {
		*raftBind = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port+1)
	}

	electionNode, err := election.NewNode(&election.Config{
		NodeID:    *nodeID,
		RaftDir:   *raftDir,
		RaftBind:  *raftBind,
		Bootstrap: *bootstrap,
		RaftCfg:   &cfg.Raft,
	})
	if err != nil {
		log.Fatal("failed to start election node", "error", err)
	}
	log.Info("started master election node", "node_id", *nodeID, "raft_bind", *raftBind)

	local := membership.Member{UUID: uuid.New(), Address: localAddr, Lite: cfg.Membership.LiteMember}
	var seeds []membership.Member
	for _, addr := range cfg.Membership.SeedMembers {
		if addr == localAddr {
			continue
		}
		seeds = append(seeds, membership.Member{UUID: uuid.New(), Address: addr})
	}
	members := membership.NewStatic(local, seeds...)
	log.Info("initialized static membership", "local", localAddr, "seeds", len(seeds))

	dialer := rpc.NewDialer()
	transport := rpc.NewTransport(localAddr, dialer)

	svc := partition.NewService(partition.ServiceConfig{
		LocalAddress:          localAddr,
		PartitionCount:        cfg.Partition.Count,
		BackupCount:           cfg.Partition.MaxReplicaCount - 1,
		LockTimeout:           time.Duration(cfg.Partition.LockAcquireTimeoutMs) * time.Millisecond,
		SyncTimeout:           time.Duration(cfg.Partition.SyncStateTimeoutMs) * time.Millisecond,
		FetchTimeout:          time.Duration(cfg.Partition.FetchStateTimeoutMs) * time.Millisecond,
		ShutdownStep:          time.Duration(cfg.Partition.ShutdownStepMs) * time.Millisecond,
		MigrationTimeout:      time.Duration(cfg.Partition.MigrationTimeoutMs) * time.Millisecond,
		TriggerMinDelay:       time.Duration(cfg.Partition.TriggerCoalesceMinDelayMs) * time.Millisecond,
		TriggerMaxDelay:       time.Duration(cfg.Partition.TriggerCoalesceMaxDelayMs) * time.Millisecond,
		TableSendInterval:     time.Duration(cfg.Partition.TableSendIntervalSeconds) * time.Second,
		OwnerWaitPollInterval: time.Duration(cfg.Partition.OwnerWaitPollIntervalMs) * time.Millisecond,
	}, electionNode, members, transport, transport, transport)

	svc.Start()
	log.Info("started partition service", "partitions", cfg.Partition.Count, "max_replica_count", cfg.Partition.MaxReplicaCount)

	rpcServer, err := rpcserver.New(localAddr, rpcserver.NewHandler(svc))
	if err != nil {
		log.Fatal("failed to start partition rpc server", "error", err)
	}
	go func() {
		if err := rpcServer.Start(); err != nil {
			log.Error("partition rpc server stopped", "error", err)
		}
	}()
	log.Info("started partition rpc server", "addr", localAddr)

	metricsServer := metrics.New(cfg)
	if err := metricsServer.Start(); err != nil {
		log.Fatal("failed to start metrics server", "error", err)
	}

	profilerServer := profiler.NewServer(cfg)
	if err := profilerServer.Start(); err != nil {
		log.Fatal("failed to start profiler server", "error", err)
	}

	adminServer := adminhttp.NewServer(*adminAddr, svc, members)
	go func() {
		if err := adminServer.Start(); err != nil {
			log.Error("admin api server stopped", "error", err)
		}
	}()
	log.Info("started admin api server", "addr", *adminAddr)

	if electionNode.IsMaster() {
		if _, err := svc.FirstArrangement(context.Background()); err != nil {
			log.Error("initial partition arrangement failed", "error", err)
		}
	}

	log.Info("partitiond started successfully", "addr", localAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down partitiond")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if !svc.OnShutdown(shutdownCtx, 30*time.Second) {
		log.Warn("graceful partition shutdown timed out")
	}

	svc.Stop()
	rpcServer.Stop()
	dialer.Close()

	if err := metricsServer.Stop(); err != nil {
		log.Error("failed to stop metrics server", "error", err)
	}

	if err := profilerServer.Stop(); err != nil {
		log.Error("failed to stop profiler server", "error", err)
	}

	if err := electionNode.Shutdown(); err != nil {
		log.Error("failed to stop election node", "error", err)
	}

	log.Info("partitiond stopped")
}
