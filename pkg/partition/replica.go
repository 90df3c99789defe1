// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/takhin-data/partitiond/pkg/logger"
)

// ReplicaSyncTransport is the narrow capability C3 needs: ask a partition
// owner for the versions of replicas this node does not yet hold.
type ReplicaSyncTransport interface {
	RequestReplicaVersions(ctx context.Context, owner string, partitionIDs []int) error
}

// replicaSyncRequest tracks one outstanding or scheduled sync for a
// (partition, replica index) pair this node holds a non-owner slot of.
type replicaSyncRequest struct {
	PartitionID  int
	ReplicaIndex int
	Owner        string
	ScheduledAt  time.Time
	InFlight     bool
}

// ReplicaManager is C3: it schedules and tracks per-partition replica
// sync requests, cancelling them on membership changes. Grounded on
// pkg/replication/manager.go's map[string]*X + RWMutex registry shape,
// repurposed from "own the partition's log" to "track in-flight
// replica-version-sync requests." Replica sync is best-effort and
// explicitly outside the strict versioning invariant: completing or
// failing a sync never bumps the partition state version.
type ReplicaManager struct {
	mu sync.RWMutex

	local     string
	state     *StateManager
	transport ReplicaSyncTransport
	logger    *logger.Logger

	scheduled map[string]*replicaSyncRequest // key: partitionID:replicaIndex
	ongoing   map[string]*replicaSyncRequest
}

// NewReplicaManager constructs C3. local is this node's own address,
// used to find slots it occupies as a non-owner.
func NewReplicaManager(local string, state *StateManager, transport ReplicaSyncTransport) *ReplicaManager {
	return &ReplicaManager{
		local:     local,
		state:     state,
		transport: transport,
		logger:    logger.Default().WithComponent("replica"),
		scheduled: make(map[string]*replicaSyncRequest),
		ongoing:   make(map[string]*replicaSyncRequest),
	}
}

func replicaKey(partitionID, replicaIndex int) string {
	return fmt.Sprintf("%d:%d", partitionID, replicaIndex)
}

// ScheduleReplicaVersionSync walks partitions where this node holds a
// non-owner slot and schedules a version-sync request against the owner
// for each one not already in flight.
func (r *ReplicaManager) ScheduleReplicaVersionSync(ctx context.Context) {
	table := r.state.PartitionsCopy()

	type pending struct {
		owner string
		ids   []int
	}
	byOwner := map[string]*pending{}

	r.mu.Lock()
	for _, p := range table {
		idx := -1
		for i, slot := range p.Slots {
			if slot.Address == r.local && i != 0 {
				idx = i
				break
			}
		}
		if idx < 0 {
			continue
		}
		owner := p.Owner()
		if owner.IsEmpty() {
			continue
		}

		key := replicaKey(p.ID, idx)
		if _, inflight := r.ongoing[key]; inflight {
			continue
		}

		r.scheduled[key] = &replicaSyncRequest{
			PartitionID:  p.ID,
			ReplicaIndex: idx,
			Owner:        owner.Address,
			ScheduledAt:  time.Now(),
		}

		grp, ok := byOwner[owner.Address]
		if !ok {
			grp = &pending{owner: owner.Address}
			byOwner[owner.Address] = grp
		}
		grp.ids = append(grp.ids, p.ID)
	}
	r.mu.Unlock()

	if r.transport == nil {
		return
	}
	for _, grp := range byOwner {
		r.runSync(ctx, grp.owner, grp.ids)
	}
}

func (r *ReplicaManager) runSync(ctx context.Context, owner string, ids []int) {
	r.mu.Lock()
	for _, id := range ids {
		for key, req := range r.scheduled {
			if req.PartitionID == id && req.Owner == owner {
				req.InFlight = true
				r.ongoing[key] = req
				delete(r.scheduled, key)
			}
		}
	}
	r.mu.Unlock()

	err := r.transport.RequestReplicaVersions(ctx, owner, ids)
	if err != nil {
		r.logger.Debug("replica version sync failed", "owner", owner, "error", err)
	}

	r.mu.Lock()
	for key, req := range r.ongoing {
		for _, id := range ids {
			if req.PartitionID == id && req.Owner == owner {
				delete(r.ongoing, key)
			}
		}
	}
	r.mu.Unlock()
}

// CancelReplicaSyncRequestsTo drops all scheduled and ongoing requests
// targeting member. Idempotent.
func (r *ReplicaManager) CancelReplicaSyncRequestsTo(member string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, req := range r.scheduled {
		if req.Owner == member {
			delete(r.scheduled, key)
		}
	}
	for key, req := range r.ongoing {
		if req.Owner == member {
			delete(r.ongoing, key)
		}
	}
}

// Reset clears all tracked sync state.
func (r *ReplicaManager) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = make(map[string]*replicaSyncRequest)
	r.ongoing = make(map[string]*replicaSyncRequest)
}

// GetOngoingReplicaSyncRequests returns a snapshot of in-flight requests.
func (r *ReplicaManager) GetOngoingReplicaSyncRequests() []replicaSyncRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]replicaSyncRequest, 0, len(r.ongoing))
	for _, req := range r.ongoing {
		out = append(out, *req)
	}
	return out
}

// GetScheduledReplicaSyncRequests returns a snapshot of requests waiting
// to be sent.
func (r *ReplicaManager) GetScheduledReplicaSyncRequests() []replicaSyncRequest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]replicaSyncRequest, 0, len(r.scheduled))
	for _, req := range r.scheduled {
		out = append(out, *req)
	}
	return out
}
