// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/takhin-data/partitiond/pkg/election"
	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/metrics"
	"github.com/takhin-data/partitiond/pkg/perr"
	"github.com/takhin-data/partitiond/pkg/trigger"
)

// ServiceTransport is the narrow capability C5 needs to talk to peers over the
// 7 RPC operations of spec.md §6, beyond the migration-specific
// Transport used by C2. The real implementation lives in pkg/rpc +
// pkg/rpcserver; tests substitute a fake. Kept as an interface here, not
// in pkg/rpc, so pkg/partition never imports the transport package —
// pkg/rpc imports pkg/partition instead, avoiding a cycle.
type ServiceTransport interface {
	AssignPartitions(ctx context.Context, master string) (*RuntimeState, error)
	PublishState(ctx context.Context, peer string, state RuntimeState, wantAck bool) (bool, error)
	CheckVersion(ctx context.Context, peer string, version int) (bool, error)
	FetchState(ctx context.Context, peer string) (*RuntimeState, error)
	SendShutdownRequest(ctx context.Context, master string) error
	TriggerMemberListPublish(ctx context.Context, master string) error
}

// ServiceConfig bundles Service's tunables, sourced from
// config.PartitionConfig.
type ServiceConfig struct {
	LocalAddress          string
	PartitionCount        int
	BackupCount           int
	LockTimeout           time.Duration
	SyncTimeout           time.Duration
	FetchTimeout          time.Duration
	ShutdownStep          time.Duration
	MigrationTimeout      time.Duration
	TriggerMinDelay       time.Duration
	TriggerMaxDelay       time.Duration
	TableSendInterval     time.Duration
	OwnerWaitPollInterval time.Duration
}

// Service is C5, the Partition Service coordinator: the public façade
// that owns the lock, wires C1-C4, drives master-side publication,
// processes inbound state, and runs the master-takeover reconciliation
// task. Grounded on pkg/coordinator/coordinator.go (registry +
// sync.RWMutex + zap.Logger + background ticker) and
// pkg/coordinator/group.go (a tracked entity with a monotonic generation
// counter and an explicit state-transition API — the same shape as the
// partition table's monotonic version counter and migration lifecycle).
// C5 uses go.uber.org/zap directly for its own lifecycle logging, the
// same split the teacher's coordinator carries alongside the slog-based
// logger used everywhere else.
type Service struct {
	cfg ServiceConfig

	// lockSem is a 1-buffered channel acting as a mutex that supports a
	// timed acquire, which sync.Mutex cannot do natively; this backs the
	// "reentrant mutex" of spec.md §4.5 — callers never recurse into a
	// second acquire, so a plain timed binary semaphore is sufficient.
	lockSem chan struct{}

	state      *StateManager
	migrations *MigrationManager
	replicas   *ReplicaManager
	checker    *StateChecker
	listeners  *listenerRegistry

	elector   election.Elector
	members   membership.Provider
	transport ServiceTransport

	masterTriggered atomic.Bool
	assignTrigger   *trigger.Trigger

	shouldFetchPartitionTables atomic.Bool
	fetchRunning               atomic.Bool

	mu                  sync.Mutex
	lastMaster          string
	prevMembers         []membership.Member
	peerActiveMigration *MigrationInfo
	shutLatch           chan struct{}
	closed              atomic.Bool

	unsubscribeMembership func()

	tableSendStop chan struct{}

	logger *zap.Logger
}

var _ metrics.PartitionStateProvider = (*Service)(nil)

// NewService wires C1-C5 from their dependencies, following the
// narrow-capability-interface pattern of spec.md §9: Service passes
// itself to no sub-manager; instead each sub-manager is handed only the
// callback or interface it actually needs.
func NewService(cfg ServiceConfig, elector election.Elector, members membership.Provider, serviceTransport ServiceTransport, migrationTransport Transport, replicaTransport ReplicaSyncTransport) *Service {
	zl, _ := zap.NewProduction()

	s := &Service{
		cfg:           cfg,
		lockSem:       make(chan struct{}, 1),
		listeners:     newListenerRegistry(),
		elector:       elector,
		members:       members,
		transport:     serviceTransport,
		tableSendStop: make(chan struct{}),
		logger:        zl,
	}
	s.lockSem <- struct{}{}

	s.state = NewStateManager(cfg.PartitionCount, GroupRoundRobin{}, s.onReplicaChanged)

	s.migrations = NewMigrationManager(ManagerConfig{
		State:            s.state,
		Strategy:         GroupRoundRobin{},
		Listeners:        s.listeners,
		Elector:          elector,
		Members:          members,
		Transport:        migrationTransport,
		Commit:           s.commitMigration,
		MigrationTimeout: cfg.MigrationTimeout,
		TriggerMinDelay:  cfg.TriggerMinDelay,
		TriggerMaxDelay:  cfg.TriggerMaxDelay,
	})

	s.replicas = NewReplicaManager(cfg.LocalAddress, s.state, replicaTransport)

	s.checker = NewStateChecker(s.state, s.migrations, s.replicas, s.masterHasActiveMigration, func() int { return cfg.BackupCount })

	s.assignTrigger = trigger.New(func() { s.masterTriggered.Store(false) }, cfg.TriggerMinDelay, cfg.TriggerMaxDelay)

	if members != nil {
		s.unsubscribeMembership = members.Subscribe(s.onMembershipChanged)
	}

	return s
}

// Start launches the migration executor and the master's periodic
// publish/check ticker.
func (s *Service) Start() {
	s.migrations.Start()
	go s.tableSendLoop()
}

// Stop halts background work. Safe to call once.
func (s *Service) Stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.tableSendStop)
	s.migrations.Stop()
	s.assignTrigger.Stop()
	if s.unsubscribeMembership != nil {
		s.unsubscribeMembership()
	}
}

func (s *Service) tableSendLoop() {
	interval := s.cfg.TableSendInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.elector.IsMaster() {
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
				s.PublishPartitionRuntimeState(ctx)
				s.CheckClusterPartitionRuntimeStates(ctx)
				cancel()
			}
		case <-s.tableSendStop:
			return
		}
	}
}

func (s *Service) onReplicaChanged(partitionID, replicaIndex int, old, new Replica) {
	if replicaIndex == 0 {
		metrics.PartitionOwnerChangesTotal.Inc()
	}
}

func (s *Service) onMembershipChanged(current []membership.Member) {
	s.state.UpdateMemberGroupsSize(current)

	s.mu.Lock()
	previous := s.prevMembers
	previousMaster := s.lastMaster
	s.prevMembers = append([]membership.Member(nil), current...)
	s.mu.Unlock()

	stillPresent := make(map[string]bool, len(current))
	for _, m := range current {
		stillPresent[m.Address] = true
	}
	for _, m := range previous {
		if !stillPresent[m.Address] {
			s.OnMemberRemoved(m, previousMaster)
		}
	}

	if s.elector.IsMaster() {
		s.migrations.TriggerControlTask()
	}
}

// OnMemberRemoved reacts to a membership departure: it cancels any active
// migration or replica sync involving the member, and — if this node has
// just become master in the member's place — kicks off master-takeover
// reconciliation.
func (s *Service) OnMemberRemoved(removed membership.Member, previousMaster string) {
	s.migrations.OnMemberRemove(removed.Address)
	s.replicas.CancelReplicaSyncRequestsTo(removed.Address)

	s.mu.Lock()
	wasMaster := previousMaster
	s.mu.Unlock()

	if wasMaster != "" && wasMaster == removed.Address && s.elector.IsMaster() {
		s.shouldFetchPartitionTables.Store(true)
		go s.runMasterTakeoverReconciliation(context.Background())
	}

	s.mu.Lock()
	s.lastMaster = s.elector.Leader()
	s.mu.Unlock()
}

func (s *Service) acquireLock(timeout time.Duration) bool {
	select {
	case <-s.lockSem:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Service) releaseLock() {
	s.lockSem <- struct{}{}
}

func (s *Service) snapshotLocked() RuntimeState {
	return RuntimeState{
		MasterAddress:       s.cfg.LocalAddress,
		Table:               s.state.PartitionsCopy(),
		Version:             s.state.Version(),
		CompletedMigrations: s.migrations.GetCompletedMigrationsCopy(),
		ActiveMigration:     s.migrations.GetActiveMigration(),
		PublishedAt:         time.Now(),
	}
}

// Snapshot returns the current runtime state without requiring the
// coordinator lock (each field is independently consistent; callers that
// need atomicity across fields should use the lock-guarded paths).
func (s *Service) Snapshot() RuntimeState {
	return s.snapshotLocked()
}

func (s *Service) masterHasActiveMigration() bool {
	if s.elector.IsMaster() {
		return s.migrations.HasOnGoingMigration()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerActiveMigration != nil
}

// --- Consumer-facing lookups ---

// GetPartitionId maps a key's partition hash deterministically into
// [0, N). hashToIndex mirrors Java's Hazelcast HashUtil.hashToIndex:
// take the absolute value of the hash, then mod N. math.MinInt32, which
// has no positive counterpart in int32, maps to 0.
func (s *Service) GetPartitionId(partitionHash int32) int {
	return hashToIndex(partitionHash, s.state.PartitionCount())
}

func hashToIndex(hash int32, count int) int {
	if count <= 0 || hash == -1<<31 {
		return 0
	}
	if hash < 0 {
		hash = -hash
	}
	return int(hash) % count
}

// GetPartition returns a copy of the partition at id.
func (s *Service) GetPartition(id int) (Partition, error) {
	return s.state.GetPartition(id)
}

// GetPartitions returns a copy of the whole table.
func (s *Service) GetPartitions() Table {
	return s.state.PartitionsCopy()
}

// GetPartitionOwner returns the current (possibly empty) owner of a
// partition, triggering arrangement if the table is not yet initialized.
// Never blocks.
func (s *Service) GetPartitionOwner(id int) (Replica, error) {
	if !s.state.IsInitialized() {
		if s.elector.IsMaster() {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
				defer cancel()
				_, _ = s.FirstArrangement(ctx)
			}()
		} else {
			s.TriggerMasterToAssignPartitions()
		}
	}

	p, err := s.state.GetPartition(id)
	if err != nil {
		return Replica{}, err
	}
	return p.Owner(), nil
}

// GetPartitionOwnerOrWait blocks in OwnerWaitPollInterval increments until
// an owner exists.
func (s *Service) GetPartitionOwnerOrWait(ctx context.Context, id int) (Replica, error) {
	poll := s.cfg.OwnerWaitPollInterval
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}

	for {
		if s.closed.Load() {
			return Replica{}, perr.ErrNotActive
		}
		if !s.migrations.AreMigrationTasksAllowed() && !s.state.IsInitialized() {
			return Replica{}, perr.ErrMigrationDisallowed
		}
		if len(s.dataMembers()) == 0 {
			return Replica{}, perr.ErrNoDataMember
		}

		owner, err := s.GetPartitionOwner(id)
		if err != nil {
			return Replica{}, err
		}
		if !owner.IsEmpty() {
			return owner, nil
		}

		select {
		case <-ctx.Done():
			return Replica{}, ctx.Err()
		case <-time.After(poll):
		}
	}
}

func (s *Service) dataMembers() []membership.Member {
	if s.members == nil {
		return nil
	}
	all := s.members.Members()
	out := make([]membership.Member, 0, len(all))
	for _, m := range all {
		if !m.Lite {
			out = append(out, m)
		}
	}
	return out
}

func (s *Service) peerAddresses() []string {
	if s.members == nil {
		return nil
	}
	var out []string
	for _, m := range s.members.Members() {
		if m.Address != s.cfg.LocalAddress {
			out = append(out, m.Address)
		}
	}
	return out
}

// GetMemberPartitions returns the ids of partitions for which address
// holds any replica slot.
func (s *Service) GetMemberPartitions(address string) []int {
	table := s.state.PartitionsCopy()
	var out []int
	for _, p := range table {
		for _, slot := range p.Slots {
			if slot.Address == address {
				out = append(out, p.ID)
				break
			}
		}
	}
	return out
}

// GetMemberPartitionsMap groups every partition id by the address of its
// owner.
func (s *Service) GetMemberPartitionsMap() map[string][]int {
	table := s.state.PartitionsCopy()
	out := make(map[string][]int)
	for _, p := range table {
		owner := p.Owner()
		if owner.IsEmpty() {
			continue
		}
		out[owner.Address] = append(out[owner.Address], p.ID)
	}
	return out
}

// --- Listener registration ---

func (s *Service) AddMigrationListener(l MigrationListener) int { return s.listeners.addMigrationListener(l) }
func (s *Service) RemoveMigrationListener(id int) bool          { return s.listeners.removeMigrationListener(id) }
func (s *Service) AddPartitionLostListener(l PartitionLostListener) int {
	return s.listeners.addPartitionLostListener(l)
}
func (s *Service) RemovePartitionLostListener(id int) bool {
	return s.listeners.removePartitionLostListener(id)
}
func (s *Service) AddLocalPartitionLostListener(l PartitionLostListener) int {
	return s.listeners.addLocalPartitionLostListener(l)
}
func (s *Service) RemoveLocalPartitionLostListener(id int) bool {
	return s.listeners.removeLocalPartitionLostListener(id)
}

// IsMemberStateSafe reports C4's SAFE verdict as a boolean.
func (s *Service) IsMemberStateSafe() bool { return s.checker.IsSafe() }

// CheckState runs C4's safety check and returns the precise verdict,
// for callers (e.g. pkg/adminhttp) that want more than a boolean.
func (s *Service) CheckState() SafetyStatus { return s.checker.Check() }

// HasOnGoingMigration reports whether a migration is active anywhere C2
// tracks it locally.
func (s *Service) HasOnGoingMigration() bool { return s.migrations.HasOnGoingMigration() }

// HasOnGoingMigrationLocal is an alias kept for API parity with spec.md's
// consumer API naming (local-only view, identical to HasOnGoingMigration
// since C2 only tracks this node's own active migration).
func (s *Service) HasOnGoingMigrationLocal() bool { return s.HasOnGoingMigration() }

// --- Master-side operations ---

// FirstArrangement computes and, if it mutated the table, publishes the
// initial arrangement. Master only.
func (s *Service) FirstArrangement(ctx context.Context) (*RuntimeState, error) {
	if !s.elector.IsMaster() {
		return nil, perr.ErrNotMaster
	}

	if !s.acquireLock(s.cfg.LockTimeout) {
		return nil, perr.ErrLockTimeout
	}

	excluded := map[string]bool{}
	for _, addr := range s.migrations.GetShutdownRequestedMembers() {
		excluded[addr] = true
	}

	mutated, err := s.state.InitializePartitionAssignments(s.dataMembers(), excluded)
	if err != nil {
		s.releaseLock()
		return nil, err
	}
	if mutated {
		s.state.IncrementVersion()
	}
	snap := s.snapshotLocked()
	s.releaseLock()

	if mutated {
		s.PublishPartitionRuntimeState(ctx)
	}
	return &snap, nil
}

// TriggerMasterToAssignPartitions asks the master for an assignment,
// guarded by a CAS flag so at most one request is in flight per
// coalescing window.
func (s *Service) TriggerMasterToAssignPartitions() {
	if !s.masterTriggered.CompareAndSwap(false, true) {
		return
	}
	s.assignTrigger.Trigger()

	go func() {
		master := s.elector.Leader()
		if master == "" || s.transport == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
		defer cancel()

		state, err := s.transport.AssignPartitions(ctx, master)
		s.masterTriggered.Store(false)
		if err != nil || state == nil {
			return
		}
		_, _ = s.ProcessPartitionRuntimeState(*state)
	}()
}

// PublishPartitionRuntimeState snapshots under lock then sends a
// best-effort PartitionStateOperation to every non-local member. Master
// only. RPC timeouts here are logged and not retried: a peer that missed
// this publish pulls the next version on its own periodic check.
func (s *Service) PublishPartitionRuntimeState(ctx context.Context) {
	if !s.elector.IsMaster() || s.transport == nil {
		return
	}
	if !s.acquireLock(s.cfg.LockTimeout) {
		s.logger.Debug("publish partition state skipped: lock timeout")
		return
	}
	snap := s.snapshotLocked()
	s.releaseLock()

	for _, addr := range s.peerAddresses() {
		go func(addr string) {
			c, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
			defer cancel()
			start := time.Now()
			_, err := s.transport.PublishState(c, addr, snap, false)
			metrics.RecordRPC("publish_partition_state", time.Since(start), errKind(err))
			if err != nil {
				s.logger.Debug("publish partition state timed out", zap.String("peer", addr), zap.Error(err))
			}
		}(addr)
	}
}

// SyncPartitionRuntimeState is like PublishPartitionRuntimeState but
// waits for each peer's acknowledgement. Returns true iff every peer
// acknowledged the version. Master only.
func (s *Service) SyncPartitionRuntimeState(ctx context.Context) bool {
	if !s.elector.IsMaster() || s.transport == nil {
		return false
	}
	snap := s.snapshotLocked()
	peers := s.peerAddresses()
	if len(peers) == 0 {
		return true
	}

	results := make(chan bool, len(peers))
	for _, addr := range peers {
		go func(addr string) {
			c, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
			defer cancel()
			start := time.Now()
			ok, err := s.transport.PublishState(c, addr, snap, true)
			metrics.RecordRPC("sync_partition_state", time.Since(start), errKind(err))
			results <- err == nil && ok
		}(addr)
	}

	allOK := true
	for range peers {
		if !<-results {
			allOK = false
		}
	}
	return allOK
}

// CheckClusterPartitionRuntimeStates sends a version-check RPC to every
// peer, pushing a full publish to any peer that reports being stale.
// Master only.
func (s *Service) CheckClusterPartitionRuntimeStates(ctx context.Context) {
	if !s.elector.IsMaster() || s.transport == nil {
		return
	}
	version := s.state.Version()

	for _, addr := range s.peerAddresses() {
		go func(addr string) {
			c, cancel := context.WithTimeout(ctx, s.cfg.SyncTimeout)
			defer cancel()
			upToDate, err := s.transport.CheckVersion(c, addr, version)
			if err != nil {
				return
			}
			if !upToDate {
				snap := s.snapshotLocked()
				_, _ = s.transport.PublishState(c, addr, snap, false)
			}
		}(addr)
	}
}

// --- Non-master receive path ---

// ProcessPartitionRuntimeState validates the sender then applies the
// incoming state. Non-master receive path.
func (s *Service) ProcessPartitionRuntimeState(state RuntimeState) (bool, error) {
	if s.elector.IsMaster() {
		if state.MasterAddress != s.cfg.LocalAddress {
			s.logger.Error("rejecting partition state: this node is master but sender differs",
				zap.String("sender", state.MasterAddress))
			return false, perr.ErrNotMaster
		}
	} else {
		knownMaster := s.elector.Leader()
		if knownMaster == "" {
			s.logger.Error("rejecting partition state: no known master", zap.String("sender", state.MasterAddress))
			return false, perr.ErrUnknownSender
		}
		if state.MasterAddress != knownMaster {
			s.logger.Warn("rejecting partition state from unexpected sender",
				zap.String("sender", state.MasterAddress), zap.String("known_master", knownMaster))
			return false, perr.ErrUnknownSender
		}

		s.mu.Lock()
		s.peerActiveMigration = state.ActiveMigration
		s.mu.Unlock()
	}

	return s.ApplyNewPartitionTable(state.Table, state.Version, state.CompletedMigrations, state.MasterAddress)
}

// ApplyNewPartitionTable is the core state-application algorithm of
// spec.md §4.5. It acquires the coordinator lock with a timeout, checks
// version monotonicity, detects replicas unknown to the current
// membership (requesting a member-list refresh at most once per call),
// then overwrites the table and folds in completed migrations.
func (s *Service) ApplyNewPartitionTable(table Table, newVersion int, completed []MigrationInfo, sender string) (bool, error) {
	if !s.acquireLock(s.cfg.LockTimeout) {
		return false, perr.ErrLockTimeout
	}
	defer s.releaseLock()

	current := s.state.Version()
	if newVersion < current {
		s.logger.Debug("stale partition state ignored", zap.Int("incoming", newVersion), zap.Int("current", current))
		return false, nil
	}
	if newVersion == current {
		// Pure no-op per the resolved open question: an equal-version
		// state never merges completed migrations or fires listeners.
		return true, nil
	}

	if unknown := s.detectUnknownReplicas(table); unknown && s.transport != nil && sender != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
			defer cancel()
			_ = s.transport.TriggerMemberListPublish(ctx, sender)
		}()
	}

	for _, p := range table {
		_ = s.state.UpdateReplicas(p.ID, p.Slots)
	}

	s.applyCompletedMigrations(completed)
	s.state.SetVersion(newVersion)

	return true, nil
}

func (s *Service) detectUnknownReplicas(table Table) bool {
	known := map[string]bool{}
	for _, m := range s.dataMembers() {
		known[m.Address] = true
	}
	for _, p := range table {
		for _, slot := range p.Slots {
			if slot.IsEmpty() {
				continue
			}
			if !known[slot.Address] {
				return true
			}
		}
	}
	return false
}

// applyCompletedMigrations folds newly-seen completed migrations into C2
// in the iteration order of the incoming list, scheduling finalization
// for each one newly added, so finalizers always observe the
// post-migration table (the version is bumped by the caller right after
// this returns).
func (s *Service) applyCompletedMigrations(completed []MigrationInfo) {
	for _, m := range completed {
		if s.migrations.AddCompletedMigration(m) {
			s.migrations.ScheduleActiveMigrationFinalization(m)
		}
	}
}

func (s *Service) commitMigration(m MigrationInfo) {
	if !s.acquireLock(s.cfg.LockTimeout) {
		return
	}
	defer s.releaseLock()

	p, err := s.state.GetPartition(m.PartitionID)
	if err != nil {
		return
	}
	updated := s.migrations.ApplyMigration(p, m)
	_ = s.state.UpdateReplicas(m.PartitionID, updated.Slots)
	s.state.IncrementVersion()

	snap := s.snapshotLocked()
	go s.broadcastSnapshot(snap)
}

func (s *Service) broadcastSnapshot(snap RuntimeState) {
	if s.transport == nil {
		return
	}
	for _, addr := range s.peerAddresses() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SyncTimeout)
		_, _ = s.transport.PublishState(ctx, addr, snap, false)
		cancel()
	}
}

// --- Master-takeover reconciliation ---

func (s *Service) runMasterTakeoverReconciliation(ctx context.Context) {
	if !s.fetchRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.fetchRunning.Store(false)

	if !s.migrations.AreMigrationTasksAllowed() {
		s.shouldFetchPartitionTables.Store(false)
		return
	}

	peers := s.peerAddresses()
	type fetchResult struct {
		state RuntimeState
		ok    bool
	}
	resultsCh := make(chan fetchResult, len(peers))

	var wg sync.WaitGroup
	for _, addr := range peers {
		wg.Add(1)
		go func(addr string) {
			defer wg.Done()
			for {
				c, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
				state, err := s.transport.FetchState(c, addr)
				cancel()
				if err == nil {
					if state != nil {
						resultsCh <- fetchResult{*state, true}
					}
					return
				}
				if !s.isMember(addr) {
					return
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
			}
		}(addr)
	}
	wg.Wait()
	close(resultsCh)

	maxVersion := s.state.Version()
	var chosenTable Table
	var chosenCompleted []MigrationInfo
	found := false
	var activeMigrations []MigrationInfo

	for r := range resultsCh {
		if r.state.ActiveMigration != nil {
			activeMigrations = append(activeMigrations, *r.state.ActiveMigration)
		}
		if r.state.Version > maxVersion {
			maxVersion = r.state.Version
			chosenTable = r.state.Table
			chosenCompleted = r.state.CompletedMigrations
			found = true
		}
	}
	if local := s.migrations.GetActiveMigration(); local != nil {
		activeMigrations = append(activeMigrations, *local)
	}

	for _, m := range activeMigrations {
		m.Status = MigrationFailed
		s.migrations.AddCompletedMigration(m)
	}

	if found {
		_, _ = s.ApplyNewPartitionTable(chosenTable, maxVersion+1, chosenCompleted, s.cfg.LocalAddress)
	} else if s.state.IsInitialized() {
		s.state.IncrementVersion()
	}

	s.PublishPartitionRuntimeState(ctx)
	s.shouldFetchPartitionTables.Store(false)
}

func (s *Service) isMember(address string) bool {
	for _, m := range s.dataMembers() {
		if m.Address == address {
			return true
		}
	}
	return false
}

// --- Graceful shutdown ---

// OnShutdown implements spec.md §4.5's graceful-shutdown loop: lite
// members return true immediately; otherwise it sends a ShutdownRequest
// to the master (or drains locally if this node is master) in steps no
// longer than ShutdownStep, until the shutdown latch is released or
// timeout expires.
func (s *Service) OnShutdown(ctx context.Context, timeout time.Duration) bool {
	local := s.members.LocalMember()
	if local.Lite {
		return true
	}

	latch := s.getOrCreateShutdownLatch()
	deadline := time.Now().Add(timeout)
	step := s.cfg.ShutdownStep
	if step <= 0 || step > time.Second {
		step = time.Second
	}

	for time.Now().Before(deadline) {
		if s.elector.IsMaster() {
			s.migrations.OnShutdownRequest(s.cfg.LocalAddress)
		} else if s.transport != nil {
			master := s.elector.Leader()
			if master != "" {
				c, cancel := context.WithTimeout(ctx, step)
				_ = s.transport.SendShutdownRequest(c, master)
				cancel()
			}
		}

		select {
		case <-latch:
			return true
		case <-time.After(step):
			continue
		case <-ctx.Done():
			return false
		}
	}

	select {
	case <-latch:
		return true
	default:
		return false
	}
}

func (s *Service) getOrCreateShutdownLatch() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutLatch == nil {
		s.shutLatch = make(chan struct{})
	}
	return s.shutLatch
}

// OnShutdownResponse releases the shutdown latch once the master has
// confirmed this member has been drained. One-shot: a released latch
// cannot be reused.
func (s *Service) OnShutdownResponse() {
	s.mu.Lock()
	latch := s.shutLatch
	s.mu.Unlock()
	if latch == nil {
		return
	}
	select {
	case <-latch:
	default:
		close(latch)
	}
}

// --- State-change listeners ---

// OnClusterStateChange re-triggers a control task on the master if the
// new state re-enables migration.
func (s *Service) OnClusterStateChange(migrationsAllowed bool) {
	if migrationsAllowed {
		s.migrations.ResumeMigration()
		if s.elector.IsMaster() {
			s.migrations.TriggerControlTask()
		}
	} else {
		s.migrations.PauseMigration()
	}
}

func errKind(err error) string {
	if err == nil {
		return ""
	}
	if perr.IsRecoverable(err) {
		return "recoverable"
	}
	return "error"
}

// --- metrics.PartitionStateProvider ---

func (s *Service) Version() int               { return s.state.Version() }
func (s *Service) PartitionCount() int        { return s.state.PartitionCount() }
func (s *Service) ReplicaCounts() map[int]int { return s.state.ReplicaCounts() }
func (s *Service) UnownedPartitionCount() int { return s.state.UnownedPartitionCount() }
func (s *Service) IsSafe() bool               { return s.checker.IsSafe() }
func (s *Service) MemberCount() int {
	if s.members == nil {
		return 0
	}
	return len(s.members.Members())
}

// --- inbound RPC handlers ---
//
// These back pkg/rpcserver's handler adapter. They translate a wire
// call into the corresponding Service operation; the wire encoding
// itself lives entirely in pkg/rpc.

// HandleAssignPartitionsRequest serves a non-master's request for the
// master to (re-)compute partition ownership. It is a no-op if the
// table is already initialized.
func (s *Service) HandleAssignPartitionsRequest(ctx context.Context) (*RuntimeState, error) {
	if !s.elector.IsMaster() {
		return nil, perr.ErrNotMaster
	}
	state, err := s.FirstArrangement(ctx)
	if errors.Is(err, perr.ErrAlreadyInitialized) {
		snap := s.Snapshot()
		return &snap, nil
	}
	if err != nil {
		return nil, err
	}
	return state, nil
}

// HandleShutdownRequest records that address wishes to leave the
// cluster once its owned partitions have been migrated away.
func (s *Service) HandleShutdownRequest(address string) {
	s.migrations.OnShutdownRequest(address)
}

// IsVersionCurrent reports whether the local partition table is at
// least as new as version.
func (s *Service) IsVersionCurrent(version int) bool {
	return s.state.Version() >= version
}

// HandleTriggerMemberListPublish asks the membership layer to
// republish its view. partitiond ships a static membership provider
// (see pkg/membership), so this is currently a logging hook; a gossip
// or server-list based provider would wire an actual republish here.
func (s *Service) HandleTriggerMemberListPublish() {
	s.logger.Debug("member list publish requested", zap.String("local", s.cfg.LocalAddress))
}

// HandleMigrationInvoke acknowledges a migration that this node is the
// source for and always reports success. It copies no data: moving the
// owned bytes for a partition is out of scope (see the replica manager's
// version-only sync model); acknowledging success here lets MigrationManager's control loop drive
// the ownership change through to completion.
func (s *Service) HandleMigrationInvoke(ctx context.Context, m MigrationInfo) (bool, error) {
	return true, nil
}

func (s *Service) ReplicaSnapshots() []metrics.ReplicaSnapshot {
	var out []metrics.ReplicaSnapshot
	for _, req := range s.replicas.GetOngoingReplicaSyncRequests() {
		out = append(out, metrics.ReplicaSnapshot{
			PartitionID:  req.PartitionID,
			ReplicaIndex: req.ReplicaIndex,
			LastSyncedAt: req.ScheduledAt,
		})
	}
	for _, req := range s.replicas.GetScheduledReplicaSyncRequests() {
		out = append(out, metrics.ReplicaSnapshot{
			PartitionID:  req.PartitionID,
			ReplicaIndex: req.ReplicaIndex,
			LastSyncedAt: req.ScheduledAt,
		})
	}
	return out
}
