// Copyright 2025 Takhin Data, Inc.

package partition

import "github.com/takhin-data/partitiond/pkg/metrics"

// SafetyStatus is the read-only predicate C4 computes: is the cluster in
// a state safe for shutdown or upgrade?
type SafetyStatus int

const (
	// SAFE: initialized, no active migrations locally or on master, all
	// owned partitions have their configured replica count filled.
	SAFE SafetyStatus = iota
	// SAFE_WITH_REPLICAS_MISSING: no active migrations, but at least one
	// partition has fewer than the configured replica count.
	SAFE_WITH_REPLICAS_MISSING
	// REPLICA_NOT_SYNCED: a replica sync is outstanding (best-effort,
	// does not block migrations but is reported for visibility).
	REPLICA_NOT_SYNCED
	// MIGRATION_LOCAL: this node has an active migration in flight.
	MIGRATION_LOCAL
	// MIGRATION_ON_MASTER: the master reports an active migration,
	// though this node has none locally.
	MIGRATION_ON_MASTER
)

func (s SafetyStatus) String() string {
	switch s {
	case SAFE:
		return "SAFE"
	case SAFE_WITH_REPLICAS_MISSING:
		return "SAFE_WITH_REPLICAS_MISSING"
	case REPLICA_NOT_SYNCED:
		return "REPLICA_NOT_SYNCED"
	case MIGRATION_LOCAL:
		return "MIGRATION_LOCAL"
	case MIGRATION_ON_MASTER:
		return "MIGRATION_ON_MASTER"
	default:
		return "UNKNOWN"
	}
}

// StateChecker is C4: a pure read-only predicate over C1/C2/C3's state.
// Grounded on pkg/health/health.go's Checker/Status enum pattern,
// generalized from HTTP liveness/readiness to the cluster-safety enum of
// spec.md §4.4.
type StateChecker struct {
	state       *StateManager
	migrations  *MigrationManager
	replicas    *ReplicaManager
	masterActiveMigration func() bool
	configuredBackupCount func() int
}

// NewStateChecker constructs C4 over its collaborators. masterActive
// reports whether the master currently has an active migration (as known
// from the last received RuntimeState); configuredBackupCount reports the
// number of backups the cluster is currently configured to maintain.
func NewStateChecker(state *StateManager, migrations *MigrationManager, replicas *ReplicaManager, masterActive func() bool, configuredBackupCount func() int) *StateChecker {
	return &StateChecker{
		state:                 state,
		migrations:            migrations,
		replicas:              replicas,
		masterActiveMigration: masterActive,
		configuredBackupCount: configuredBackupCount,
	}
}

// Check computes the current SafetyStatus. It never mutates state.
func (c *StateChecker) Check() SafetyStatus {
	metrics.ReplicaStateChecksTotal.Inc()

	if !c.state.IsInitialized() {
		return SAFE_WITH_REPLICAS_MISSING
	}
	if c.migrations != nil && c.migrations.HasOnGoingMigration() {
		return MIGRATION_LOCAL
	}
	if c.masterActiveMigration != nil && c.masterActiveMigration() {
		return MIGRATION_ON_MASTER
	}
	if c.replicas != nil && len(c.replicas.GetOngoingReplicaSyncRequests()) > 0 {
		return REPLICA_NOT_SYNCED
	}

	want := MaxReplicaCount
	if c.configuredBackupCount != nil {
		want = c.configuredBackupCount() + 1
	}

	for _, count := range c.state.ReplicaCounts() {
		if count < want {
			return SAFE_WITH_REPLICAS_MISSING
		}
	}

	return SAFE
}

// IsSafe reports whether Check() returns exactly SAFE.
func (c *StateChecker) IsSafe() bool {
	return c.Check() == SAFE
}
