// Copyright 2025 Takhin Data, Inc.

// Package election elects a single cluster master using Raft leader
// election. It carries no partition-table state: Raft's log here votes on
// leadership only, never on partition assignments.
package election

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/takhin-data/partitiond/pkg/config"
	"github.com/takhin-data/partitiond/pkg/logger"
	"github.com/takhin-data/partitiond/pkg/metrics"
)

// Elector is the narrow capability pkg/partition depends on: whether this
// member currently holds mastership, and who does if not.
type Elector interface {
	IsMaster() bool
	Leader() string
}

// Config holds the configuration needed to start a Node.
type Config struct {
	NodeID    string
	RaftDir   string
	RaftBind  string
	Bootstrap bool
	RaftCfg   *config.RaftConfig
}

// Node wraps a hashicorp/raft instance dedicated to master election.
type Node struct {
	raft          *raft.Raft
	config        *Config
	transport     *raft.NetworkTransport
	logStore      *raftboltdb.BoltStore
	stableStore   *raftboltdb.BoltStore
	snapshotStore raft.SnapshotStore
	logger        *logger.Logger
	notifyCh      chan bool
	lastState     raft.RaftState
	electionStart time.Time
}

var _ Elector = (*Node)(nil)

// NewNode creates and starts a Raft node used purely for master election.
func NewNode(cfg *Config) (*Node, error) {
	if err := os.MkdirAll(cfg.RaftDir, 0755); err != nil {
		return nil, fmt.Errorf("create raft directory: %w", err)
	}

	fsm := newFSM()

	raftConfig := raft.DefaultConfig()
	raftConfig.LocalID = raft.ServerID(cfg.NodeID)

	if cfg.RaftCfg != nil {
		raftConfig.HeartbeatTimeout = time.Duration(cfg.RaftCfg.HeartbeatTimeoutMs) * time.Millisecond
		raftConfig.ElectionTimeout = time.Duration(cfg.RaftCfg.ElectionTimeoutMs) * time.Millisecond
		raftConfig.LeaderLeaseTimeout = time.Duration(cfg.RaftCfg.LeaderLeaseTimeoutMs) * time.Millisecond
		raftConfig.CommitTimeout = time.Duration(cfg.RaftCfg.CommitTimeoutMs) * time.Millisecond
		raftConfig.SnapshotInterval = time.Duration(cfg.RaftCfg.SnapshotIntervalMs) * time.Millisecond
		raftConfig.SnapshotThreshold = uint64(cfg.RaftCfg.SnapshotThreshold)
		raftConfig.MaxAppendEntries = cfg.RaftCfg.MaxAppendEntries
		raftConfig.PreVoteDisabled = !cfg.RaftCfg.PreVoteEnabled
	}

	notifyCh := make(chan bool, 10)
	raftConfig.NotifyCh = notifyCh

	log := logger.Default().WithComponent("election")

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.RaftDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.RaftDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.RaftDir, 3, os.Stderr)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.RaftBind)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("resolve raft bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(cfg.RaftBind, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	r, err := raft.NewRaft(raftConfig, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		transport.Close()
		logStore.Close()
		stableStore.Close()
		return nil, fmt.Errorf("create raft: %w", err)
	}

	node := &Node{
		raft:          r,
		config:        cfg,
		transport:     transport,
		logStore:      logStore,
		stableStore:   stableStore,
		snapshotStore: snapshotStore,
		logger:        log,
		notifyCh:      notifyCh,
		lastState:     raft.Follower,
	}

	go node.monitorLeadership()

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{
					ID:      raft.ServerID(cfg.NodeID),
					Address: transport.LocalAddr(),
				},
			},
		}
		future := r.BootstrapCluster(configuration)
		if err := future.Error(); err != nil {
			node.logger.Error("failed to bootstrap cluster", "error", err)
		}
	}

	return node, nil
}

// IsMaster reports whether this node currently holds Raft leadership.
func (n *Node) IsMaster() bool {
	return n.raft.State() == raft.Leader
}

// Leader returns the address of the current Raft leader, or "" if unknown.
func (n *Node) Leader() string {
	addr, _ := n.raft.LeaderWithID()
	return string(addr)
}

// AddVoter adds a new voting member to the election cluster.
func (n *Node) AddVoter(id, address string) error {
	future := n.raft.AddVoter(raft.ServerID(id), raft.ServerAddress(address), 0, 0)
	return future.Error()
}

// RemoveServer removes a member from the election cluster.
func (n *Node) RemoveServer(id string) error {
	future := n.raft.RemoveServer(raft.ServerID(id), 0, 0)
	return future.Error()
}

// Stats returns Raft diagnostic stats.
func (n *Node) Stats() map[string]string {
	return n.raft.Stats()
}

func (n *Node) monitorLeadership() {
	for isLeader := range n.notifyCh {
		currentState := n.raft.State()

		if currentState != n.lastState {
			switch currentState {
			case raft.Follower:
				metrics.RaftState.Set(0)
			case raft.Candidate:
				metrics.RaftState.Set(1)
				n.electionStart = time.Now()
				metrics.RaftElectionsTotal.Inc()
				n.logger.Info("starting master election")
			case raft.Leader:
				metrics.RaftState.Set(2)
				if n.lastState == raft.Candidate && !n.electionStart.IsZero() {
					duration := time.Since(n.electionStart).Seconds()
					metrics.RaftElectionDuration.Observe(duration)
					n.logger.Info("master election completed", "duration_seconds", duration)
				}
				metrics.RecordMasterTakeover()
			}

			if (n.lastState == raft.Leader && currentState != raft.Leader) ||
				(n.lastState != raft.Leader && currentState == raft.Leader) {
				metrics.RaftLeaderChanges.Inc()
				n.logger.Info("mastership changed",
					"from", n.lastState.String(),
					"to", currentState.String(),
					"is_master", isLeader)
			}

			n.lastState = currentState
		}
	}
}

// Shutdown stops the Raft node and releases its resources.
func (n *Node) Shutdown() error {
	n.logger.Info("shutting down election node")

	if err := n.raft.Shutdown().Error(); err != nil {
		n.logger.Error("failed to shutdown raft", "error", err)
	}
	if err := n.transport.Close(); err != nil {
		n.logger.Error("failed to close transport", "error", err)
	}
	if err := n.logStore.Close(); err != nil {
		n.logger.Error("failed to close log store", "error", err)
	}
	if err := n.stableStore.Close(); err != nil {
		n.logger.Error("failed to close stable store", "error", err)
	}

	return nil
}
