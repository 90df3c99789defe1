// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/perr"
)

func newTestService(t *testing.T, local string, members []membership.Member, elector *fakeElector, transport *fakeServiceTransport) *Service {
	t.Helper()
	cfg := ServiceConfig{
		LocalAddress:          local,
		PartitionCount:        4,
		BackupCount:           1,
		LockTimeout:           200 * time.Millisecond,
		SyncTimeout:           200 * time.Millisecond,
		FetchTimeout:          200 * time.Millisecond,
		ShutdownStep:          50 * time.Millisecond,
		MigrationTimeout:      200 * time.Millisecond,
		TriggerMinDelay:       5 * time.Millisecond,
		TriggerMaxDelay:       20 * time.Millisecond,
		TableSendInterval:     time.Hour,
		OwnerWaitPollInterval: 5 * time.Millisecond,
	}
	svc := NewService(cfg, elector, &fakeMembers{local: membership.Member{Address: local}, members: members}, transport, &fakeMigrationTransport{ok: true}, &fakeReplicaSyncTransport{})
	t.Cleanup(svc.Stop)
	return svc
}

func TestServiceGetPartitionId(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{}, &fakeServiceTransport{})

	assert.Equal(t, 0, svc.GetPartitionId(0))
	assert.Equal(t, int(7)%4, svc.GetPartitionId(7))
	assert.Equal(t, int(7)%4, svc.GetPartitionId(-7), "negative hashes fold to the same index as their magnitude")
}

func TestServiceFirstArrangementRejectsNonMaster(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{master: false}, &fakeServiceTransport{})

	_, err := svc.FirstArrangement(context.Background())
	assert.ErrorIs(t, err, perr.ErrNotMaster)
}

func TestServiceFirstArrangementMutatesAndPublishes(t *testing.T) {
	members := testMembers(2)
	elector := &fakeElector{master: true, leader: "10.0.0.1:5701"}
	transport := &fakeServiceTransport{}
	svc := newTestService(t, "10.0.0.1:5701", members, elector, transport)

	state, err := svc.FirstArrangement(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, 0, svc.state.UnownedPartitionCount())

	assert.Eventually(t, func() bool { return transport.publishedCount() > 0 }, time.Second, 5*time.Millisecond)
}

func TestServiceFirstArrangementAlreadyInitialized(t *testing.T) {
	members := testMembers(2)
	elector := &fakeElector{master: true, leader: "10.0.0.1:5701"}
	svc := newTestService(t, "10.0.0.1:5701", members, elector, &fakeServiceTransport{})

	_, err := svc.FirstArrangement(context.Background())
	require.NoError(t, err)

	_, err = svc.FirstArrangement(context.Background())
	assert.ErrorIs(t, err, perr.ErrAlreadyInitialized)
}

func TestServiceApplyNewPartitionTableStaleVersionIsNoOp(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{}, &fakeServiceTransport{})
	svc.state.SetVersion(5)

	applied, err := svc.ApplyNewPartitionTable(make(Table, 4), 3, nil, "master:5701")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 5, svc.state.Version())
}

func TestServiceApplyNewPartitionTableEqualVersionIsPureNoOp(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{}, &fakeServiceTransport{})
	svc.state.SetVersion(5)

	table := make(Table, 4)
	table[0].Slots[0] = Replica{Address: "10.0.0.9:5701"}

	applied, err := svc.ApplyNewPartitionTable(table, 5, nil, "master:5701")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, svc.state.PartitionsCopy()[0].Owner().IsEmpty(), "equal-version state must not merge into the table")
}

func TestServiceApplyNewPartitionTableAdvancesVersion(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{}, &fakeServiceTransport{})

	table := make(Table, 4)
	table[0].Slots[0] = Replica{Address: "10.0.0.9:5701"}

	applied, err := svc.ApplyNewPartitionTable(table, 1, nil, "master:5701")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, svc.state.Version())
	assert.Equal(t, "10.0.0.9:5701", svc.state.PartitionsCopy()[0].Owner().Address)
}

func TestServiceProcessPartitionRuntimeStateRejectsUnknownSenderWhenNoMaster(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{master: false, leader: ""}, &fakeServiceTransport{})

	_, err := svc.ProcessPartitionRuntimeState(RuntimeState{MasterAddress: "someone:5701", Version: 1})
	assert.ErrorIs(t, err, perr.ErrUnknownSender)
}

func TestServiceProcessPartitionRuntimeStateRejectsWrongSender(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{master: false, leader: "master:5701"}, &fakeServiceTransport{})

	_, err := svc.ProcessPartitionRuntimeState(RuntimeState{MasterAddress: "impostor:5701", Version: 1})
	assert.ErrorIs(t, err, perr.ErrUnknownSender)
}

func TestServiceProcessPartitionRuntimeStateAcceptsKnownMaster(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{master: false, leader: "master:5701"}, &fakeServiceTransport{})

	table := make(Table, 4)
	table[0].Slots[0] = Replica{Address: "10.0.0.9:5701"}

	applied, err := svc.ProcessPartitionRuntimeState(RuntimeState{MasterAddress: "master:5701", Version: 1, Table: table})
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestServiceOnShutdownLiteMemberReturnsImmediately(t *testing.T) {
	elector := &fakeElector{}
	svc := NewService(ServiceConfig{LocalAddress: "10.0.0.1:5701", PartitionCount: 4}, elector,
		&fakeMembers{local: membership.Member{Address: "10.0.0.1:5701", Lite: true}},
		&fakeServiceTransport{}, &fakeMigrationTransport{}, &fakeReplicaSyncTransport{})
	t.Cleanup(svc.Stop)

	ok := svc.OnShutdown(context.Background(), time.Second)
	assert.True(t, ok)
}

func TestServiceOnShutdownReleasesOnResponse(t *testing.T) {
	elector := &fakeElector{master: false, leader: "master:5701"}
	transport := &fakeServiceTransport{}
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), elector, transport)

	done := make(chan bool, 1)
	go func() {
		done <- svc.OnShutdown(context.Background(), 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	svc.OnShutdownResponse()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(3 * time.Second):
		t.Fatal("OnShutdown did not return after OnShutdownResponse")
	}
}

func TestServiceIsMemberStateSafeUninitialized(t *testing.T) {
	svc := newTestService(t, "10.0.0.1:5701", testMembers(2), &fakeElector{}, &fakeServiceTransport{})
	assert.False(t, svc.IsMemberStateSafe())
}

func TestServiceMemberCount(t *testing.T) {
	members := testMembers(3)
	svc := newTestService(t, "10.0.0.1:5701", members, &fakeElector{}, &fakeServiceTransport{})
	assert.Equal(t, 3, svc.MemberCount())
}

func TestServiceGetMemberPartitionsMap(t *testing.T) {
	elector := &fakeElector{master: true, leader: "10.0.0.1:5701"}
	members := testMembers(2)
	svc := newTestService(t, "10.0.0.1:5701", members, elector, &fakeServiceTransport{})

	_, err := svc.FirstArrangement(context.Background())
	require.NoError(t, err)

	owned := svc.GetMemberPartitionsMap()
	total := 0
	for _, ids := range owned {
		total += len(ids)
	}
	assert.Equal(t, 4, total)
}
