// Copyright 2025 Takhin Data, Inc.

package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the partition service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Partition  PartitionConfig  `koanf:"partition"`
	Membership MembershipConfig `koanf:"membership"`
	Raft       RaftConfig       `koanf:"raft"`
	Logging    LoggingConfig    `koanf:"logging"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Profiler   ProfilerConfig   `koanf:"profiler"`
}

// ServerConfig holds the RPC server configuration.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// PartitionConfig holds cluster partition table configuration.
type PartitionConfig struct {
	Count                     int `koanf:"count"`                         // fixed partition count N, default 271
	MaxReplicaCount           int `koanf:"max.replica.count"`             // default 7 (1 owner + 6 backups)
	MigrationTimeoutMs        int `koanf:"migration.timeout.ms"`          // per-migration RPC deadline
	TableSendIntervalSeconds  int `koanf:"table.send.interval.seconds"`   // master publish period, coerced to >=1
	OwnerWaitPollIntervalMs   int `koanf:"owner.wait.poll.interval.ms"`   // getPartitionOwnerOrWait poll step
	TriggerCoalesceMinDelayMs int `koanf:"trigger.coalesce.min.delay.ms"` // coalescing trigger floor
	TriggerCoalesceMaxDelayMs int `koanf:"trigger.coalesce.max.delay.ms"` // coalescing trigger ceiling
	LockAcquireTimeoutMs      int `koanf:"lock.acquire.timeout.ms"`       // applyNewPartitionTable lock timeout
	SyncStateTimeoutMs        int `koanf:"sync.state.timeout.ms"`         // syncPartitionRuntimeState per-peer deadline
	FetchStateTimeoutMs       int `koanf:"fetch.state.timeout.ms"`        // master-takeover fetch per-peer deadline
	ShutdownStepMs            int `koanf:"shutdown.step.ms"`              // onShutdown loop step, capped at 1s
}

// MembershipConfig holds the external cluster membership collaborator
// configuration (seed list for the stub/static implementation used where
// no real failure detector is wired in).
type MembershipConfig struct {
	SelfAddress string   `koanf:"self.address"`
	SeedMembers []string `koanf:"seed.members"`
	LiteMember  bool     `koanf:"lite.member"`
}

// RaftConfig holds Raft leader-election configuration. The partition table
// itself is never replicated through Raft; Raft only elects the master.
type RaftConfig struct {
	HeartbeatTimeoutMs   int  `koanf:"heartbeat.timeout.ms"`
	ElectionTimeoutMs    int  `koanf:"election.timeout.ms"`
	LeaderLeaseTimeoutMs int  `koanf:"leader.lease.timeout.ms"`
	CommitTimeoutMs      int  `koanf:"commit.timeout.ms"`
	SnapshotIntervalMs   int  `koanf:"snapshot.interval.ms"`
	SnapshotThreshold    int  `koanf:"snapshot.threshold"`
	PreVoteEnabled       bool `koanf:"prevote.enabled"`
	MaxAppendEntries     int  `koanf:"max.append.entries"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
	Path    string `koanf:"path"`
}

// ProfilerConfig holds the pprof debug server configuration.
type ProfilerConfig struct {
	Enabled bool   `koanf:"enabled"`
	Host    string `koanf:"host"`
	Port    int    `koanf:"port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
		slog.Info("loaded config from file", "path", configPath)
	}

	if err := k.Load(env.Provider("PARTITIOND_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PARTITIOND_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5701
	}

	if cfg.Partition.Count == 0 {
		cfg.Partition.Count = 271
	}
	if cfg.Partition.MaxReplicaCount == 0 {
		cfg.Partition.MaxReplicaCount = 7
	}
	if cfg.Partition.MigrationTimeoutMs == 0 {
		cfg.Partition.MigrationTimeoutMs = 300000 // 5 minutes
	}
	if cfg.Partition.TableSendIntervalSeconds == 0 {
		cfg.Partition.TableSendIntervalSeconds = 15
	}
	if cfg.Partition.TableSendIntervalSeconds < 1 {
		cfg.Partition.TableSendIntervalSeconds = 1
	}
	if cfg.Partition.OwnerWaitPollIntervalMs == 0 {
		cfg.Partition.OwnerWaitPollIntervalMs = 10
	}
	if cfg.Partition.TriggerCoalesceMinDelayMs == 0 {
		cfg.Partition.TriggerCoalesceMinDelayMs = 200
	}
	if cfg.Partition.TriggerCoalesceMaxDelayMs == 0 {
		cfg.Partition.TriggerCoalesceMaxDelayMs = 5000
	}
	if cfg.Partition.LockAcquireTimeoutMs == 0 {
		cfg.Partition.LockAcquireTimeoutMs = 10000
	}
	if cfg.Partition.SyncStateTimeoutMs == 0 {
		cfg.Partition.SyncStateTimeoutMs = 10000
	}
	if cfg.Partition.FetchStateTimeoutMs == 0 {
		cfg.Partition.FetchStateTimeoutMs = 5000
	}
	if cfg.Partition.ShutdownStepMs == 0 {
		cfg.Partition.ShutdownStepMs = 1000
	}

	// Raft defaults - optimized for fast leader election
	if cfg.Raft.HeartbeatTimeoutMs == 0 {
		cfg.Raft.HeartbeatTimeoutMs = 1000
	}
	if cfg.Raft.ElectionTimeoutMs == 0 {
		cfg.Raft.ElectionTimeoutMs = 3000
	}
	if cfg.Raft.LeaderLeaseTimeoutMs == 0 {
		cfg.Raft.LeaderLeaseTimeoutMs = 500
	}
	if cfg.Raft.CommitTimeoutMs == 0 {
		cfg.Raft.CommitTimeoutMs = 50
	}
	if cfg.Raft.SnapshotIntervalMs == 0 {
		cfg.Raft.SnapshotIntervalMs = 120000
	}
	if cfg.Raft.SnapshotThreshold == 0 {
		cfg.Raft.SnapshotThreshold = 8192
	}
	if cfg.Raft.MaxAppendEntries == 0 {
		cfg.Raft.MaxAppendEntries = 64
	}
	// PreVote defaults to false (zero value) unless explicitly enabled.

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}

	if cfg.Profiler.Host == "" {
		cfg.Profiler.Host = "127.0.0.1"
	}
	if cfg.Profiler.Port == 0 {
		cfg.Profiler.Port = 6060
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Partition.Count < 1 {
		return fmt.Errorf("invalid partition count: %d", cfg.Partition.Count)
	}
	if cfg.Partition.MaxReplicaCount < 1 || cfg.Partition.MaxReplicaCount > 7 {
		return fmt.Errorf("invalid max replica count: %d (must be 1-7)", cfg.Partition.MaxReplicaCount)
	}

	// Validate membership seeds: if a self address is configured alongside
	// a seed list, the self address must be one of the seeds.
	if len(cfg.Membership.SeedMembers) > 0 && cfg.Membership.SelfAddress != "" {
		found := false
		for _, addr := range cfg.Membership.SeedMembers {
			if addr == cfg.Membership.SelfAddress {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("self address %q not found in membership.seed.members list", cfg.Membership.SelfAddress)
		}
	}

	// Validate Raft configuration (only if any Raft values are set)
	if cfg.Raft.HeartbeatTimeoutMs > 0 {
		if cfg.Raft.HeartbeatTimeoutMs < 100 {
			return fmt.Errorf("invalid heartbeat timeout: %dms (minimum 100ms)", cfg.Raft.HeartbeatTimeoutMs)
		}
		if cfg.Raft.ElectionTimeoutMs < cfg.Raft.HeartbeatTimeoutMs {
			return fmt.Errorf("election timeout (%dms) must be >= heartbeat timeout (%dms)",
				cfg.Raft.ElectionTimeoutMs, cfg.Raft.HeartbeatTimeoutMs)
		}
		if cfg.Raft.LeaderLeaseTimeoutMs > 0 && cfg.Raft.LeaderLeaseTimeoutMs < 100 {
			return fmt.Errorf("invalid leader lease timeout: %dms (minimum 100ms)", cfg.Raft.LeaderLeaseTimeoutMs)
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	return nil
}
