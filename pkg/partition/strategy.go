// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"sort"
	"strings"

	"github.com/takhin-data/partitiond/pkg/membership"
)

// Strategy computes a replica arrangement for the partition table. It is
// injected into the state manager and migration planner as a narrow
// collaborator, following pkg/replication/assigner.go's
// ReplicaAssigner/AssignReplicas shape, generalized from flat round-robin
// over a broker list to group-aware placement: no two slots of the same
// partition are ever assigned to the same member group, and placement
// diffs against the current table to preserve existing owners rather than
// recomputing from scratch on every call.
type Strategy interface {
	// Arrange returns a new table of the given length, placing up to
	// backupCount+1 replicas per partition across the supplied candidate
	// members, preserving slots from current where the occupant is still
	// a candidate and doing so does not violate the one-slot-per-group
	// rule.
	Arrange(current Table, length int, candidates []membership.Member, backupCount int) Table

	// GroupCount reports how many distinct member groups the given
	// candidate set forms, which callers use to cap backupCount at
	// min(groupCount-1, MaxReplicaCount-1).
	GroupCount(candidates []membership.Member) int
}

// groupKey derives the member-group identity for placement purposes. With
// no explicit rack/zone metadata carried on membership.Member, the group
// key is the member's host (address without port): members that share a
// host are grouped together, exactly degenerating to "one group per
// member" for the common case of one member per host per spec's default
// behavior.
func groupKey(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// GroupRoundRobin is the default Strategy: a deterministic round-robin
// placement over member groups, taken in sorted group-key (host) order with
// members inside a group kept in the order given, for reproducibility
// across nodes computing the same arrangement independently.
type GroupRoundRobin struct{}

var _ Strategy = GroupRoundRobin{}

func (GroupRoundRobin) GroupCount(candidates []membership.Member) int {
	groups := map[string]struct{}{}
	for _, m := range candidates {
		if m.Lite {
			continue
		}
		groups[groupKey(m.Address)] = struct{}{}
	}
	return len(groups)
}

func (g GroupRoundRobin) Arrange(current Table, length int, candidates []membership.Member, backupCount int) Table {
	groups := groupedCandidates(candidates)
	if len(groups) == 0 {
		return make(Table, length)
	}

	maxBackups := len(groups) - 1
	if maxBackups > MaxReplicaCount-1 {
		maxBackups = MaxReplicaCount - 1
	}
	if backupCount > maxBackups {
		backupCount = maxBackups
	}
	if backupCount < 0 {
		backupCount = 0
	}
	slotCount := backupCount + 1

	out := make(Table, length)
	for pid := 0; pid < length; pid++ {
		out[pid] = Partition{ID: pid}

		used := map[string]bool{}
		var existing Partition
		if pid < len(current) {
			existing = current[pid]
		}

		// Preserve existing occupants that are still candidates and
		// whose group is not already used earlier in this partition's
		// new arrangement.
		for slot := 0; slot < slotCount; slot++ {
			if slot >= len(existing.Slots) {
				break
			}
			prior := existing.Slots[slot]
			if prior.IsEmpty() {
				continue
			}
			if !isCandidate(groups, prior) {
				continue
			}
			key := groupKey(prior.Address)
			if used[key] {
				continue
			}
			out[pid].Slots[slot] = prior
			used[key] = true
		}

		// Fill remaining slots round-robin starting from an offset
		// derived from the partition id, skipping groups already used
		// by this partition.
		groupOrder := orderedGroupKeys(groups)
		start := pid % len(groupOrder)
		cursor := map[string]int{} // group key -> next member index within group

		for slot := 0; slot < slotCount; slot++ {
			if !out[pid].Slots[slot].IsEmpty() {
				continue
			}
			for offset := 0; offset < len(groupOrder); offset++ {
				key := groupOrder[(start+offset)%len(groupOrder)]
				if used[key] {
					continue
				}
				members := groups[key]
				idx := cursor[key] % len(members)
				cursor[key] = idx + 1
				out[pid].Slots[slot] = members[idx]
				used[key] = true
				break
			}
		}
	}

	return out
}

func isCandidate(groups map[string][]Replica, r Replica) bool {
	key := groupKey(r.Address)
	for _, m := range groups[key] {
		if m.Equal(r) {
			return true
		}
	}
	return false
}

func groupedCandidates(candidates []membership.Member) map[string][]Replica {
	groups := map[string][]Replica{}
	for _, m := range candidates {
		if m.Lite {
			continue
		}
		key := groupKey(m.Address)
		groups[key] = append(groups[key], Replica{Address: m.Address, UUID: m.UUID})
	}
	return groups
}

func orderedGroupKeys(groups map[string][]Replica) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
