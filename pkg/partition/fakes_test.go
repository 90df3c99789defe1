// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"context"
	"sync"

	"github.com/takhin-data/partitiond/pkg/membership"
)

// fakeElector is a trivial election.Elector used across the package's
// tests, letting each test control master status directly rather than
// standing up a real raft.Node.
type fakeElector struct {
	mu     sync.Mutex
	master bool
	leader string
}

func (f *fakeElector) IsMaster() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.master
}

func (f *fakeElector) Leader() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}

func (f *fakeElector) setMaster(addr string, isMaster bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leader = addr
	f.master = isMaster
}

// fakeMembers is a minimal membership.Provider backed by a fixed slice,
// standing in for membership.Static where a test needs to avoid its
// notify-on-change machinery.
type fakeMembers struct {
	local   membership.Member
	members []membership.Member
}

func (f *fakeMembers) Members() []membership.Member { return f.members }
func (f *fakeMembers) LocalMember() membership.Member { return f.local }
func (f *fakeMembers) Subscribe(l membership.ChangeListener) func() { return func() {} }

// fakeMigrationTransport drives MigrationManager.runOneMigration without
// a real RPC layer.
type fakeMigrationTransport struct {
	mu       sync.Mutex
	ok       bool
	err      error
	invoked  []MigrationInfo
}

func (f *fakeMigrationTransport) InvokeMigration(ctx context.Context, source string, m MigrationInfo) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, m)
	return f.ok, f.err
}

func (f *fakeMigrationTransport) invokedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoked)
}

// fakeReplicaSyncTransport drives ReplicaManager without a real RPC
// layer.
type fakeReplicaSyncTransport struct {
	mu       sync.Mutex
	requests [][]int
	err      error
}

func (f *fakeReplicaSyncTransport) RequestReplicaVersions(ctx context.Context, owner string, partitionIDs []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, partitionIDs)
	return f.err
}

func (f *fakeReplicaSyncTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// fakeServiceTransport drives Service's RPC-facing methods in tests.
type fakeServiceTransport struct {
	mu             sync.Mutex
	published      []RuntimeState
	publishAck     bool
	publishErr     error
	checkUpToDate  bool
	checkErr       error
	fetchState     *RuntimeState
	fetchErr       error
	assignState    *RuntimeState
	assignErr      error
	shutdownErr    error
	triggerErr     error
	triggerCalls   int
}

func (f *fakeServiceTransport) AssignPartitions(ctx context.Context, master string) (*RuntimeState, error) {
	return f.assignState, f.assignErr
}

func (f *fakeServiceTransport) PublishState(ctx context.Context, peer string, state RuntimeState, wantAck bool) (bool, error) {
	f.mu.Lock()
	f.published = append(f.published, state)
	f.mu.Unlock()
	return f.publishAck, f.publishErr
}

func (f *fakeServiceTransport) CheckVersion(ctx context.Context, peer string, version int) (bool, error) {
	return f.checkUpToDate, f.checkErr
}

func (f *fakeServiceTransport) FetchState(ctx context.Context, peer string) (*RuntimeState, error) {
	return f.fetchState, f.fetchErr
}

func (f *fakeServiceTransport) SendShutdownRequest(ctx context.Context, master string) error {
	return f.shutdownErr
}

func (f *fakeServiceTransport) TriggerMemberListPublish(ctx context.Context, master string) error {
	f.mu.Lock()
	f.triggerCalls++
	f.mu.Unlock()
	return f.triggerErr
}

func (f *fakeServiceTransport) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}
