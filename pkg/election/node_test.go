// Copyright 2025 Takhin Data, Inc.

package election

import (
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSMApplyIsNoOp(t *testing.T) {
	f := newFSM()
	result := f.Apply(nil)
	assert.Nil(t, result)
}

func TestFSMSnapshotRoundTrip(t *testing.T) {
	f := newFSM()

	snap, err := f.Snapshot()
	require.NoError(t, err)
	require.NotNil(t, snap)

	store := raft.NewInmemSnapshotStore()
	sink, err := store.Create(raft.SnapshotVersionMax, 1, 1, raft.Configuration{}, 1, nil)
	require.NoError(t, err)
	require.NoError(t, snap.Persist(sink))

	_, rc, err := store.Open(sink.ID())
	require.NoError(t, err)
	require.NoError(t, f.Restore(rc))
}

func TestSingleNodeBootstrapBecomesMaster(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping raft integration test in short mode")
	}

	raftDir := t.TempDir()
	cfg := &Config{
		NodeID:    "node1",
		RaftDir:   raftDir,
		RaftBind:  "127.0.0.1:0",
		Bootstrap: true,
	}

	node, err := NewNode(cfg)
	require.NoError(t, err)
	defer node.Shutdown()

	require.Eventually(t, node.IsMaster, 3*time.Second, 50*time.Millisecond,
		"single bootstrapped node should become master")
}

func TestElectorInterfaceSatisfiedByNode(t *testing.T) {
	var _ Elector = (*Node)(nil)
}
