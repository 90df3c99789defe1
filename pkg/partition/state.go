// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"fmt"
	"sync"

	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/perr"
)

// ReplicaChangeFunc is invoked whenever updateReplicas changes a slot,
// with the partition id, the slot index, and the old/new occupants. C5
// registers one of these at construction instead of StateManager holding
// a reference back to the coordinator, per the narrow-capability-interface
// design: StateManager only needs to announce a change, not know who is
// listening or what they do with it.
type ReplicaChangeFunc func(partitionID, replicaIndex int, old, new Replica)

// StateManager is C1, the Partition State Manager: it owns the in-memory
// partition table, its version counter, and member-group sizing. Field
// and lock layout is grounded on pkg/replication/partition.go (an
// RWMutex-guarded struct exposing narrow getters), restructured here
// around the slot-array/version model instead of ISR/high-water-mark.
type StateManager struct {
	mu sync.RWMutex

	count             int
	table             Table
	version           int
	initialized       bool
	memberGroupsSize  int
	strategy          Strategy
	onReplicaChange   ReplicaChangeFunc
}

// NewStateManager creates a StateManager for a fixed partition count. The
// table starts fully empty and uninitialized, at version 0.
func NewStateManager(count int, strategy Strategy, onReplicaChange ReplicaChangeFunc) *StateManager {
	if strategy == nil {
		strategy = GroupRoundRobin{}
	}
	return &StateManager{
		count:           count,
		table:           make(Table, count),
		strategy:        strategy,
		onReplicaChange: onReplicaChange,
	}
}

// PartitionCount returns the fixed partition count N.
func (s *StateManager) PartitionCount() int {
	return s.count
}

// IsInitialized reports whether the first arrangement has run.
func (s *StateManager) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Version returns the current partition state version.
func (s *StateManager) Version() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// SetVersion overwrites the version unconditionally. Callers are
// responsible for preserving monotonicity; this exists for
// applyNewPartitionTable's explicit version assignment, not general use.
func (s *StateManager) SetVersion(v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// IncrementVersion bumps the version by 1 and returns the new value.
func (s *StateManager) IncrementVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version++
	return s.version
}

// AddVersion bumps the version by delta (used for batch promotions of K
// replicas, which advance the version by K in one step) and returns the
// new value.
func (s *StateManager) AddVersion(delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version += delta
	return s.version
}

// GetPartition returns a copy of the partition at id.
func (s *StateManager) GetPartition(id int) (Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.table) {
		return Partition{}, fmt.Errorf("partition id out of range: %d", id)
	}
	return s.table[id], nil
}

// PartitionsCopy returns a defensive copy of the whole table.
func (s *StateManager) PartitionsCopy() Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table.Clone()
}

// UpdateReplicas overwrites the slot vector for a partition id and fires
// onReplicaChange for every slot whose occupant actually changed.
func (s *StateManager) UpdateReplicas(id int, slots [MaxReplicaCount]Replica) error {
	s.mu.Lock()
	if id < 0 || id >= len(s.table) {
		s.mu.Unlock()
		return fmt.Errorf("partition id out of range: %d", id)
	}

	old := s.table[id]
	s.table[id] = Partition{ID: id, Slots: slots}
	notify := s.onReplicaChange
	s.mu.Unlock()

	if notify == nil {
		return nil
	}
	for i := range slots {
		if !old.Slots[i].Equal(slots[i]) {
			notify(id, i, old.Slots[i], slots[i])
		}
	}
	return nil
}

// ReplaceMember rewrites every slot occupied by old to new across the
// whole table, preserving replica index. Used when a member's UUID was
// resolved after previously being recorded with UnknownUID, or when a
// member rejoins with a new address under the same identity.
func (s *StateManager) ReplaceMember(old, new Replica) {
	s.mu.Lock()
	notify := s.onReplicaChange
	type change struct {
		id, idx  int
		oldR, newR Replica
	}
	var changes []change
	for i := range s.table {
		for slot := range s.table[i].Slots {
			if s.table[i].Slots[slot].Equal(old) {
				changes = append(changes, change{i, slot, old, new})
				s.table[i].Slots[slot] = new
			}
		}
	}
	s.mu.Unlock()

	if notify == nil {
		return
	}
	for _, c := range changes {
		notify(c.id, c.idx, c.oldR, c.newR)
	}
}

// SetInitialState installs a complete table, typically from
// master-takeover reconciliation. It is rejected if the manager is
// already initialized.
func (s *StateManager) SetInitialState(table Table, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return perr.ErrAlreadyInitialized
	}
	s.table = table.Clone()
	if len(s.table) != s.count {
		// Defensive resize to the configured partition count; a shorter
		// or longer incoming table never happens in a single-version
		// cluster but guards against a misconfigured peer.
		resized := make(Table, s.count)
		copy(resized, s.table)
		for i := range resized {
			resized[i].ID = i
		}
		s.table = resized
	}
	s.version = version
	s.initialized = true
	return nil
}

// InitializePartitionAssignments computes the first arrangement using the
// injected member-group strategy, excluding any address present in
// excluded (members that asked to leave gracefully). It returns true iff
// at least one partition ended with a non-empty owner, and flips
// isInitialized to true on success.
func (s *StateManager) InitializePartitionAssignments(candidates []membership.Member, excluded map[string]bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return false, perr.ErrAlreadyInitialized
	}

	filtered := make([]membership.Member, 0, len(candidates))
	for _, m := range candidates {
		if m.Lite || excluded[m.Address] {
			continue
		}
		filtered = append(filtered, m)
	}
	if len(filtered) == 0 {
		return false, perr.ErrNoDataMember
	}

	backupCount := MaxReplicaCount - 1
	arranged := s.strategy.Arrange(s.table, s.count, filtered, backupCount)

	anyOwned := false
	for _, p := range arranged {
		if !p.Owner().IsEmpty() {
			anyOwned = true
			break
		}
	}
	if !anyOwned {
		return false, nil
	}

	s.table = arranged
	s.memberGroupsSize = s.strategy.GroupCount(filtered)
	s.initialized = true
	return true, nil
}

// UpdateMemberGroupsSize recomputes the cached member-group count from
// the current candidate set, used to cap backup counts after membership
// changes without recomputing a full arrangement.
func (s *StateManager) UpdateMemberGroupsSize(candidates []membership.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memberGroupsSize = s.strategy.GroupCount(candidates)
}

// MemberGroupsSize returns the last-computed member-group count.
func (s *StateManager) MemberGroupsSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memberGroupsSize
}

// Reset clears all slots, sets version to 0, and clears the initialized
// flag.
func (s *StateManager) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = make(Table, s.count)
	s.version = 0
	s.initialized = false
	s.memberGroupsSize = 0
}

// UnownedPartitionCount returns how many partitions currently have an
// empty owner slot.
func (s *StateManager) UnownedPartitionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.table {
		if p.Owner().IsEmpty() {
			n++
		}
	}
	return n
}

// ReplicaCounts returns, for every partition id, the number of filled
// slots.
func (s *StateManager) ReplicaCounts() map[int]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]int, len(s.table))
	for _, p := range s.table {
		out[p.ID] = p.ReplicaCount()
	}
	return out
}
