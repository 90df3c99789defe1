// Copyright 2025 Takhin Data, Inc.

package adminhttp

import "time"

// HealthStatus mirrors the tri-state health vocabulary the rest of the
// Takhin stack uses for its own /api/health endpoints.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is the response body for GET /api/health.
type HealthCheck struct {
	Status     HealthStatus    `json:"status"`
	Uptime     string          `json:"uptime"`
	Timestamp  time.Time       `json:"timestamp"`
	Partitions PartitionHealth `json:"partitions"`
	SystemInfo SystemInfo      `json:"system_info"`
}

// PartitionHealth summarizes C4's safety verdict and the headline
// partition-table counters.
type PartitionHealth struct {
	Safe             bool   `json:"safe"`
	Check            string `json:"check"`
	Version          int    `json:"version"`
	PartitionCount   int    `json:"partition_count"`
	UnownedCount     int    `json:"unowned_count"`
	MemberCount      int    `json:"member_count"`
	OngoingMigration bool   `json:"ongoing_migration"`
}

// SystemInfo reports process-level stats, same fields the console API
// already surfaces.
type SystemInfo struct {
	GoVersion     string  `json:"go_version"`
	NumGoroutines int     `json:"num_goroutines"`
	NumCPU        int     `json:"num_cpu"`
	MemoryMB      float64 `json:"memory_mb"`
}

// ReplicaView is one slot of a PartitionView.
type ReplicaView struct {
	Index   int    `json:"index"`
	Address string `json:"address,omitempty"`
	Empty   bool   `json:"empty"`
}

// PartitionView is the read-only projection of one partition's current
// ownership served by GET /api/partitions and /api/partitions/{id}.
type PartitionView struct {
	ID       int           `json:"id"`
	Owner    string        `json:"owner,omitempty"`
	Replicas []ReplicaView `json:"replicas"`
}

// ClusterStateView is the response body for GET /api/cluster/state.
type ClusterStateView struct {
	Version        int            `json:"version"`
	PartitionCount int            `json:"partition_count"`
	Safe           bool           `json:"safe"`
	Check          string         `json:"check"`
	Members        []MemberView   `json:"members"`
	Migrations     MigrationsView `json:"migrations"`
}

// MemberView is one entry of the membership roster.
type MemberView struct {
	UUID    string `json:"uuid"`
	Address string `json:"address"`
	Lite    bool   `json:"lite"`
}

// MigrationView is one historical or in-flight migration.
type MigrationView struct {
	PartitionID  int    `json:"partition_id"`
	ReplicaIndex int    `json:"replica_index"`
	Source       string `json:"source,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Status       string `json:"status"`
}

// MigrationsView groups the active migration (if any) with recently
// completed ones.
type MigrationsView struct {
	Active    *MigrationView  `json:"active,omitempty"`
	Completed []MigrationView `json:"completed"`
}
