// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/takhin-data/partitiond/pkg/election"
	"github.com/takhin-data/partitiond/pkg/logger"
	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/metrics"
	"github.com/takhin-data/partitiond/pkg/trigger"
)

// Transport is the narrow capability the migration manager needs to move
// one replica: invoke the migration RPC against the source member and
// wait for its boolean result. The real implementation is pkg/rpc's
// Transport; tests substitute a fake.
type Transport interface {
	InvokeMigration(ctx context.Context, source string, m MigrationInfo) (bool, error)
}

// CommitFunc is invoked by the migration manager once a migration's RPC
// succeeds. The coordinator (C5) supplies this at construction: it
// applies the slot change under its own lock, bumps the partition state
// version, and publishes the new state to peers. Keeping this as an
// injected function (rather than MigrationManager holding a pointer back
// to the coordinator) is the narrow-capability-interface pattern spec.md
// §9 calls for.
type CommitFunc func(m MigrationInfo)

// MigrationManager is C2: it sequences migrations on a single control
// queue and tracks active/completed migrations. All migration decisions
// and finalizations run serially on the executor (pkg/partition/executor.go),
// removing the need for fine-grained locks on the migration plan itself.
// Grounded on pkg/coordinator/coordinator.go's Start() ticker-goroutine
// pattern, generalized from "tick every second" to "drain a task channel
// serially."
type MigrationManager struct {
	mu sync.Mutex

	state     *StateManager
	strategy  Strategy
	listeners *listenerRegistry
	elector   election.Elector
	members   membership.Provider
	transport Transport
	commit    CommitFunc

	exec    *executor
	trigger *trigger.Trigger

	active    *MigrationInfo
	completed []MigrationInfo

	paused             bool
	shutdownRequested  map[string]bool
	migrationTimeout   time.Duration

	logger *logger.Logger
}

// ManagerConfig bundles MigrationManager's construction-time dependencies.
type ManagerConfig struct {
	State            *StateManager
	Strategy         Strategy
	Listeners        *listenerRegistry
	Elector          election.Elector
	Members          membership.Provider
	Transport        Transport
	Commit           CommitFunc
	MigrationTimeout time.Duration
	TriggerMinDelay  time.Duration
	TriggerMaxDelay  time.Duration
	QueueSize        int
}

// NewMigrationManager constructs C2 from its dependencies.
func NewMigrationManager(cfg ManagerConfig) *MigrationManager {
	m := &MigrationManager{
		state:             cfg.State,
		strategy:          cfg.Strategy,
		listeners:         cfg.Listeners,
		elector:           cfg.Elector,
		members:           cfg.Members,
		transport:         cfg.Transport,
		commit:            cfg.Commit,
		exec:              newExecutor(cfg.QueueSize),
		shutdownRequested: make(map[string]bool),
		migrationTimeout:  cfg.MigrationTimeout,
		logger:            logger.Default().WithComponent("migration"),
	}
	m.trigger = trigger.New(m.enqueueControlTask, cfg.TriggerMinDelay, cfg.TriggerMaxDelay)
	return m
}

// Start launches the executor worker.
func (m *MigrationManager) Start() {
	m.exec.start()
}

// Stop halts the executor and cancels any pending coalescing trigger.
func (m *MigrationManager) Stop() {
	m.trigger.Stop()
	m.exec.stop()
}

// TriggerControlTask enqueues a control task on the coalescing trigger;
// bursts of calls while one run is pending collapse into a single
// execution, per spec's coalescing contract.
func (m *MigrationManager) TriggerControlTask() {
	m.trigger.Trigger()
}

func (m *MigrationManager) enqueueControlTask() {
	m.Schedule(m.runControlTask)
}

// Schedule enqueues an arbitrary executor task, used directly by the
// coordinator for the master-takeover reconciliation task.
func (m *MigrationManager) Schedule(t Task) bool {
	return m.exec.schedule(t)
}

// GetActiveMigration returns a copy of the in-flight migration, or nil.
func (m *MigrationManager) GetActiveMigration() *MigrationInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	cp := *m.active
	return &cp
}

// GetCompletedMigrationsCopy returns a defensive copy of the completed set.
func (m *MigrationManager) GetCompletedMigrationsCopy() []MigrationInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MigrationInfo, len(m.completed))
	copy(out, m.completed)
	return out
}

// AddCompletedMigration idempotently adds m to the completed set,
// returning true iff it was newly added (equality is the
// (partitionId, source, destination) triple per MigrationInfo.Equal).
func (m *MigrationManager) AddCompletedMigration(mig MigrationInfo) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.completed {
		if existing.Equal(mig) {
			return false
		}
	}
	m.completed = append(m.completed, mig)
	return true
}

// RetainCompletedMigrations drops completed migrations whose partition id
// is not in keep, pruning entries no longer referenced by any version a
// live node might still be catching up to.
func (m *MigrationManager) RetainCompletedMigrations(keep map[int]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.completed[:0:0]
	for _, mig := range m.completed {
		if keep[mig.PartitionID] {
			kept = append(kept, mig)
		}
	}
	m.completed = kept
}

// ApplyMigration atomically mutates p's replica slots per m: the source
// slot is cleared (if it matches m.Source at any index) and the
// destination is written at m.ReplicaIndex. Callers must hold the
// coordinator lock.
func (m *MigrationManager) ApplyMigration(p Partition, mig MigrationInfo) Partition {
	out := p
	if !mig.Source.IsEmpty() {
		if idx := out.IndexOf(mig.Source); idx >= 0 && idx != mig.ReplicaIndex {
			out.Slots[idx] = Replica{}
		}
	}
	if mig.ReplicaIndex >= 0 && mig.ReplicaIndex < MaxReplicaCount {
		out.Slots[mig.ReplicaIndex] = mig.Destination
	}
	return out
}

// ScheduleActiveMigrationFinalization enqueues a finalization task that
// informs local listeners the migration has completed.
func (m *MigrationManager) ScheduleActiveMigrationFinalization(mig MigrationInfo) {
	m.Schedule(func() {
		m.mu.Lock()
		if m.active != nil && m.active.Equal(mig) {
			m.active = nil
		}
		m.mu.Unlock()

		if m.listeners != nil {
			m.listeners.fireMigration(mig)
		}
	})
}

// PauseMigration disallows new control-task-driven migrations (cluster
// state FROZEN, or an admin pause).
func (m *MigrationManager) PauseMigration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// ResumeMigration re-allows migrations.
func (m *MigrationManager) ResumeMigration() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// AreMigrationTasksAllowed reports whether migrations are currently
// permitted.
func (m *MigrationManager) AreMigrationTasksAllowed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.paused
}

// OnMemberRemove cancels any active migration involving member, marking
// it FAILED, and forces a control-task re-run.
func (m *MigrationManager) OnMemberRemove(address string) {
	m.mu.Lock()
	var failed *MigrationInfo
	if m.active != nil && (m.active.Source.Address == address || m.active.Destination.Address == address) {
		cp := *m.active
		cp.Status = MigrationFailed
		failed = &cp
		m.active = nil
	}
	delete(m.shutdownRequested, address)
	m.mu.Unlock()

	if failed != nil {
		m.AddCompletedMigration(*failed)
		if m.listeners != nil {
			m.listeners.fireMigration(*failed)
		}
	}
	m.TriggerControlTask()
}

// OnShutdownRequest records that a member has asked to leave gracefully;
// it is excluded from future replica assignments and drained first.
func (m *MigrationManager) OnShutdownRequest(address string) {
	m.mu.Lock()
	m.shutdownRequested[address] = true
	m.mu.Unlock()
	m.TriggerControlTask()
}

// GetShutdownRequestedMembers returns the addresses that have asked to
// leave gracefully and have not yet been drained.
func (m *MigrationManager) GetShutdownRequestedMembers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.shutdownRequested))
	for addr := range m.shutdownRequested {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// HasOnGoingMigration reports whether a migration is currently active.
func (m *MigrationManager) HasOnGoingMigration() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != nil
}

// GetMigrationQueueSize returns the number of tasks waiting on the
// executor.
func (m *MigrationManager) GetMigrationQueueSize() int {
	return m.exec.queueSize()
}

// runControlTask is the control-task algorithm of spec.md §4.2, run
// exclusively on the executor worker. It is a no-op on non-masters.
func (m *MigrationManager) runControlTask() {
	if m.elector == nil || !m.elector.IsMaster() {
		return
	}
	if !m.AreMigrationTasksAllowed() {
		return
	}

	current := m.state.PartitionsCopy()
	shutdown := m.shutdownRequestedSnapshot()
	candidates := make([]membership.Member, 0)
	for _, mem := range m.dataMembers() {
		if !shutdown[mem.Address] {
			candidates = append(candidates, mem)
		}
	}

	target := m.strategy.Arrange(current, len(current), candidates, MaxReplicaCount-1)
	migrations := diffMigrations(current, target, shutdown)

	metrics.MigrationQueueDepth.Set(float64(len(migrations)))

	for _, mig := range migrations {
		m.runOneMigration(mig)
	}
}

func (m *MigrationManager) dataMembers() []membership.Member {
	if m.members == nil {
		return nil
	}
	all := m.members.Members()
	out := make([]membership.Member, 0, len(all))
	for _, mem := range all {
		if mem.Lite {
			continue
		}
		out = append(out, mem)
	}
	return out
}

func (m *MigrationManager) shutdownRequestedSnapshot() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.shutdownRequested))
	for k := range m.shutdownRequested {
		out[k] = true
	}
	return out
}

func (m *MigrationManager) runOneMigration(mig MigrationInfo) {
	m.mu.Lock()
	cp := mig
	cp.Status = MigrationPending
	m.active = &cp
	m.mu.Unlock()

	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), m.migrationTimeout)
	ok, err := false, error(nil)
	if m.transport != nil {
		ok, err = m.transport.InvokeMigration(ctx, mig.Source.Address, mig)
	}
	cancel()

	if err != nil || !ok {
		m.logger.Warn("migration failed", "partition", mig.PartitionID,
			"source", mig.Source.Address, "destination", mig.Destination.Address, "error", err)
		cp.Status = MigrationFailed
		metrics.RecordMigration("failed", time.Since(start))
		m.AddCompletedMigration(cp)
		m.ScheduleActiveMigrationFinalization(cp)
		return
	}

	cp.Status = MigrationSuccess
	metrics.RecordMigration("success", time.Since(start))

	if m.commit != nil {
		m.commit(cp)
	}
	m.AddCompletedMigration(cp)
	m.ScheduleActiveMigrationFinalization(cp)
}

// diffMigrations compares current against target and emits an ordered
// list of MigrationInfos: owner moves first per partition, then backups
// by ascending index; across partitions, moves that free a
// shutdown-requested member come first.
func diffMigrations(current, target Table, shutdownRequested map[string]bool) []MigrationInfo {
	var out []MigrationInfo

	for i := range target {
		if i >= len(current) {
			continue
		}
		for slot := 0; slot < MaxReplicaCount; slot++ {
			oldR := current[i].Slots[slot]
			newR := target[i].Slots[slot]
			if oldR.Equal(newR) {
				continue
			}
			if newR.IsEmpty() {
				continue
			}
			out = append(out, MigrationInfo{
				PartitionID:  i,
				ReplicaIndex: slot,
				Source:       oldR,
				Destination:  newR,
				Status:       MigrationPending,
			})
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		aFrees := shutdownRequested[out[a].Source.Address]
		bFrees := shutdownRequested[out[b].Source.Address]
		if aFrees != bFrees {
			return aFrees
		}
		if out[a].PartitionID != out[b].PartitionID {
			return out[a].PartitionID < out[b].PartitionID
		}
		return out[a].ReplicaIndex < out[b].ReplicaIndex
	})

	return out
}
