// Copyright 2025 Takhin Data, Inc.

package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takhin-data/partitiond/pkg/membership"
)

func newTestMigrationManager(t *testing.T, elector *fakeElector, members []membership.Member, transport *fakeMigrationTransport) (*MigrationManager, *StateManager) {
	t.Helper()
	state := NewStateManager(4, GroupRoundRobin{}, nil)
	listeners := newListenerRegistry()

	m := NewMigrationManager(ManagerConfig{
		State:            state,
		Strategy:         GroupRoundRobin{},
		Listeners:        listeners,
		Elector:          elector,
		Members:          &fakeMembers{members: members},
		Transport:        transport,
		Commit:           func(MigrationInfo) {},
		MigrationTimeout: time.Second,
		TriggerMinDelay:  5 * time.Millisecond,
		TriggerMaxDelay:  20 * time.Millisecond,
		QueueSize:        16,
	})
	return m, state
}

func TestMigrationManagerRunControlTaskNoOpOnNonMaster(t *testing.T) {
	elector := &fakeElector{master: false}
	transport := &fakeMigrationTransport{ok: true}
	m, _ := newTestMigrationManager(t, elector, testMembers(3), transport)

	m.runControlTask()
	assert.Equal(t, 0, transport.invokedCount())
}

func TestMigrationManagerRunControlTaskWhilePaused(t *testing.T) {
	elector := &fakeElector{master: true}
	transport := &fakeMigrationTransport{ok: true}
	m, _ := newTestMigrationManager(t, elector, testMembers(3), transport)

	m.PauseMigration()
	m.runControlTask()
	assert.Equal(t, 0, transport.invokedCount())
}

func TestMigrationManagerRunControlTaskInvokesMigrations(t *testing.T) {
	elector := &fakeElector{master: true}
	members := testMembers(3)
	transport := &fakeMigrationTransport{ok: true}
	m, state := newTestMigrationManager(t, elector, members, transport)

	_, err := state.InitializePartitionAssignments(members[:1], nil)
	require.NoError(t, err)

	m.runControlTask()
	assert.Greater(t, transport.invokedCount(), 0)
}

func TestMigrationManagerRunOneMigrationRecordsFailure(t *testing.T) {
	elector := &fakeElector{master: true}
	transport := &fakeMigrationTransport{ok: false}
	m, _ := newTestMigrationManager(t, elector, testMembers(2), transport)

	mig := MigrationInfo{
		PartitionID: 0,
		Source:      Replica{Address: "10.0.0.1:5701"},
		Destination: Replica{Address: "10.0.0.2:5701"},
	}
	m.runOneMigration(mig)

	completed := m.GetCompletedMigrationsCopy()
	require.Len(t, completed, 1)
	assert.Equal(t, MigrationFailed, completed[0].Status)
}

func TestMigrationManagerRunOneMigrationRecordsSuccessAndCommits(t *testing.T) {
	elector := &fakeElector{master: true}
	transport := &fakeMigrationTransport{ok: true}

	var committed MigrationInfo
	state := NewStateManager(4, GroupRoundRobin{}, nil)
	m := NewMigrationManager(ManagerConfig{
		State:            state,
		Strategy:         GroupRoundRobin{},
		Listeners:        newListenerRegistry(),
		Elector:          elector,
		Members:          &fakeMembers{members: testMembers(2)},
		Transport:        transport,
		Commit:           func(mig MigrationInfo) { committed = mig },
		MigrationTimeout: time.Second,
		TriggerMinDelay:  5 * time.Millisecond,
		TriggerMaxDelay:  20 * time.Millisecond,
	})

	mig := MigrationInfo{
		PartitionID: 1,
		Source:      Replica{Address: "10.0.0.1:5701"},
		Destination: Replica{Address: "10.0.0.2:5701"},
	}
	m.runOneMigration(mig)

	assert.Equal(t, mig.PartitionID, committed.PartitionID)
	assert.Equal(t, MigrationSuccess, committed.Status)
}

func TestMigrationManagerAddCompletedMigrationIdempotent(t *testing.T) {
	m, _ := newTestMigrationManager(t, &fakeElector{}, nil, &fakeMigrationTransport{})

	mig := MigrationInfo{PartitionID: 2, Source: Replica{Address: "a"}, Destination: Replica{Address: "b"}}
	assert.True(t, m.AddCompletedMigration(mig))
	assert.False(t, m.AddCompletedMigration(mig))

	mig.Status = MigrationFailed
	assert.False(t, m.AddCompletedMigration(mig), "equality ignores status")
}

func TestMigrationManagerRetainCompletedMigrations(t *testing.T) {
	m, _ := newTestMigrationManager(t, &fakeElector{}, nil, &fakeMigrationTransport{})

	m.AddCompletedMigration(MigrationInfo{PartitionID: 1})
	m.AddCompletedMigration(MigrationInfo{PartitionID: 2})

	m.RetainCompletedMigrations(map[int]bool{2: true})
	completed := m.GetCompletedMigrationsCopy()
	require.Len(t, completed, 1)
	assert.Equal(t, 2, completed[0].PartitionID)
}

func TestMigrationManagerApplyMigration(t *testing.T) {
	m, _ := newTestMigrationManager(t, &fakeElector{}, nil, &fakeMigrationTransport{})

	src := Replica{Address: "10.0.0.1:5701"}
	dst := Replica{Address: "10.0.0.2:5701"}
	var p Partition
	p.Slots[1] = src

	out := m.ApplyMigration(p, MigrationInfo{ReplicaIndex: 1, Source: src, Destination: dst})
	assert.True(t, out.Slots[1].Equal(dst))
}

func TestMigrationManagerOnMemberRemoveFailsActiveMigration(t *testing.T) {
	elector := &fakeElector{master: true}
	m, _ := newTestMigrationManager(t, elector, testMembers(2), &fakeMigrationTransport{ok: true})

	m.mu.Lock()
	m.active = &MigrationInfo{PartitionID: 0, Source: Replica{Address: "10.0.0.1:5701"}}
	m.mu.Unlock()

	m.OnMemberRemove("10.0.0.1:5701")

	assert.False(t, m.HasOnGoingMigration())
	completed := m.GetCompletedMigrationsCopy()
	require.Len(t, completed, 1)
	assert.Equal(t, MigrationFailed, completed[0].Status)
}

func TestMigrationManagerShutdownRequestedMembers(t *testing.T) {
	m, _ := newTestMigrationManager(t, &fakeElector{}, nil, &fakeMigrationTransport{})

	m.OnShutdownRequest("10.0.0.2:5701")
	m.OnShutdownRequest("10.0.0.1:5701")

	assert.Equal(t, []string{"10.0.0.1:5701", "10.0.0.2:5701"}, m.GetShutdownRequestedMembers())
}

func TestMigrationManagerPauseResume(t *testing.T) {
	m, _ := newTestMigrationManager(t, &fakeElector{}, nil, &fakeMigrationTransport{})

	assert.True(t, m.AreMigrationTasksAllowed())
	m.PauseMigration()
	assert.False(t, m.AreMigrationTasksAllowed())
	m.ResumeMigration()
	assert.True(t, m.AreMigrationTasksAllowed())
}

func TestDiffMigrationsOrdersShutdownFreesFirst(t *testing.T) {
	current := Table{
		{ID: 0, Slots: [MaxReplicaCount]Replica{{Address: "a"}, {Address: "b"}}},
		{ID: 1, Slots: [MaxReplicaCount]Replica{{Address: "c"}, {Address: "d"}}},
	}
	target := Table{
		{ID: 0, Slots: [MaxReplicaCount]Replica{{Address: "a"}, {Address: "e"}}},
		{ID: 1, Slots: [MaxReplicaCount]Replica{{Address: "f"}, {Address: "d"}}},
	}

	migrations := diffMigrations(current, target, map[string]bool{"c": true})
	require.Len(t, migrations, 2)
	assert.Equal(t, "c", migrations[0].Source.Address, "shutdown-freeing move sorts first")
}
