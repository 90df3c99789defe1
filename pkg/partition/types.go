// Copyright 2025 Takhin Data, Inc.

// Package partition implements the cluster partition service: the
// master-coordinated subsystem that assigns, publishes, repairs and
// migrates a fixed-size table of data partitions across the cluster. It
// answers, for every other subsystem in the node, "which member owns
// partition P, and what version of the mapping am I on".
package partition

import (
	"time"

	"github.com/google/uuid"

	"github.com/takhin-data/partitiond/pkg/membership"
)

// MaxReplicaCount is the maximum number of replica slots a partition can
// hold: slot 0 is the owner, slots 1..6 are backups in priority order.
const MaxReplicaCount = 7

// UnknownUID is the sentinel member identity used by replicas that predate
// UUID-based membership. It is an alias of membership.UnknownUID so callers
// never need to decide which package's zero value to compare against.
var UnknownUID = membership.UnknownUID

// Replica is a (network address, member UUID) pair identifying the member
// that holds one slot of a partition. Two replicas are equal iff both
// fields match exactly.
type Replica struct {
	Address string
	UUID    uuid.UUID
}

// IsEmpty reports whether this replica slot holds no member.
func (r Replica) IsEmpty() bool {
	return r.Address == ""
}

// Equal reports whether r and other identify the same replica.
func (r Replica) Equal(other Replica) bool {
	return r.Address == other.Address && r.UUID == other.UUID
}

// Partition is one of the N fixed buckets data keys are deterministically
// mapped into. Slots holds up to MaxReplicaCount ordered replica slots;
// slot 0 is the owner, slots 1..len(Slots)-1 are backups in priority
// order. An empty Replica{} occupies a slot that has not been assigned.
type Partition struct {
	ID    int
	Slots [MaxReplicaCount]Replica
}

// Owner returns the owner replica (slot 0), which may be empty.
func (p Partition) Owner() Replica {
	return p.Slots[0]
}

// IsAssigned reports whether at least one slot is non-empty. Until the
// first arrangement runs, all slots of every partition are empty.
func (p Partition) IsAssigned() bool {
	for _, slot := range p.Slots {
		if !slot.IsEmpty() {
			return true
		}
	}
	return false
}

// ReplicaCount returns how many non-empty slots the partition currently
// has filled.
func (p Partition) ReplicaCount() int {
	n := 0
	for _, slot := range p.Slots {
		if !slot.IsEmpty() {
			n++
		}
	}
	return n
}

// IndexOf returns the slot index holding the given member, or -1 if the
// member holds no slot of this partition.
func (p Partition) IndexOf(r Replica) int {
	for i, slot := range p.Slots {
		if slot.Equal(r) {
			return i
		}
	}
	return -1
}

// Table is the full length-N vector of partitions, indexed by partition
// id. It is a value type: callers that need a stable snapshot should copy
// it rather than retain a reference into a manager's internal state.
type Table []Partition

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}

// MigrationStatus is the lifecycle state of a MigrationInfo.
type MigrationStatus int

const (
	MigrationPending MigrationStatus = iota
	MigrationSuccess
	MigrationFailed
)

func (s MigrationStatus) String() string {
	switch s {
	case MigrationPending:
		return "PENDING"
	case MigrationSuccess:
		return "SUCCESS"
	case MigrationFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// MigrationInfo describes one decision to move a replica slot of one
// partition from Source to Destination. Two MigrationInfos are equal iff
// their (PartitionID, Source, Destination) triple matches — Status is
// deliberately excluded from equality so retrying the same logical move
// is recognized as the same migration regardless of outcome.
type MigrationInfo struct {
	PartitionID  int
	ReplicaIndex int // which slot is being filled
	Source       Replica
	Destination  Replica
	Status       MigrationStatus
}

// Equal compares the identity triple only, per spec: (partitionId,
// source, destination).
func (m MigrationInfo) Equal(other MigrationInfo) bool {
	return m.PartitionID == other.PartitionID &&
		m.Source.Equal(other.Source) &&
		m.Destination.Equal(other.Destination)
}

// RuntimeState is the wire-level snapshot exchanged between members: who
// published it, the table as of that version, the version itself, the
// migrations known complete as of that version, and an optional migration
// still in flight on the sender.
type RuntimeState struct {
	MasterAddress     string
	Table             Table
	Version           int
	CompletedMigrations []MigrationInfo
	ActiveMigration   *MigrationInfo
	PublishedAt       time.Time
}
