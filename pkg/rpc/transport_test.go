// Copyright 2025 Takhin Data, Inc.

package rpc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takhin-data/partitiond/pkg/membership"
	"github.com/takhin-data/partitiond/pkg/partition"
	"github.com/takhin-data/partitiond/pkg/rpc"
	"github.com/takhin-data/partitiond/pkg/rpcserver"
)

type fakeElector struct {
	master bool
	leader string
}

func (f *fakeElector) IsMaster() bool { return f.master }
func (f *fakeElector) Leader() string { return f.leader }

type noopServiceTransport struct{}

func (noopServiceTransport) AssignPartitions(ctx context.Context, master string) (*partition.RuntimeState, error) {
	return nil, nil
}
func (noopServiceTransport) PublishState(ctx context.Context, peer string, state partition.RuntimeState, wantAck bool) (bool, error) {
	return true, nil
}
func (noopServiceTransport) CheckVersion(ctx context.Context, peer string, version int) (bool, error) {
	return true, nil
}
func (noopServiceTransport) FetchState(ctx context.Context, peer string) (*partition.RuntimeState, error) {
	return nil, nil
}
func (noopServiceTransport) SendShutdownRequest(ctx context.Context, master string) error { return nil }
func (noopServiceTransport) TriggerMemberListPublish(ctx context.Context, master string) error {
	return nil
}

type noopMigrationTransport struct{}

func (noopMigrationTransport) InvokeMigration(ctx context.Context, source string, m partition.MigrationInfo) (bool, error) {
	return true, nil
}

type noopReplicaSyncTransport struct{}

func (noopReplicaSyncTransport) RequestReplicaVersions(ctx context.Context, owner string, partitionIDs []int) error {
	return nil
}

// startTestServer stands up a real rpcserver.Server on a loopback
// ephemeral port backed by a real, initialized *partition.Service, and
// returns its address and a cleanup func.
func startTestServer(t *testing.T, localAddr string) string {
	t.Helper()

	members := membership.NewStatic(membership.Member{Address: localAddr})
	svc := partition.NewService(partition.ServiceConfig{
		LocalAddress:      localAddr,
		PartitionCount:    4,
		BackupCount:       1,
		LockTimeout:       200 * time.Millisecond,
		TableSendInterval: time.Hour,
	}, &fakeElector{master: true, leader: localAddr}, members, noopServiceTransport{}, noopMigrationTransport{}, noopReplicaSyncTransport{})
	_, err := svc.FirstArrangement(context.Background())
	require.NoError(t, err)

	srv, err := rpcserver.New("127.0.0.1:0", rpcserver.NewHandler(svc))
	require.NoError(t, err)

	go srv.Start()
	t.Cleanup(func() {
		svc.Stop()
		srv.Stop()
	})

	return srv.Addr().String()
}

func TestTransportFetchStateOverRealGRPC(t *testing.T) {
	addr := startTestServer(t, "10.0.0.1:5701")

	dialer := rpc.NewDialer()
	t.Cleanup(func() { dialer.Close() })
	transport := rpc.NewTransport("10.0.0.2:5701", dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := transport.FetchState(ctx, addr)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 1, state.Version)
	assert.Len(t, state.Table, 4)
}

func TestTransportCheckVersionOverRealGRPC(t *testing.T) {
	addr := startTestServer(t, "10.0.0.1:5701")

	dialer := rpc.NewDialer()
	t.Cleanup(func() { dialer.Close() })
	transport := rpc.NewTransport("10.0.0.2:5701", dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	upToDate, err := transport.CheckVersion(ctx, addr, 100)
	require.NoError(t, err)
	assert.False(t, upToDate)
}

func TestTransportInvokeMigrationOverRealGRPC(t *testing.T) {
	addr := startTestServer(t, "10.0.0.1:5701")

	dialer := rpc.NewDialer()
	t.Cleanup(func() { dialer.Close() })
	transport := rpc.NewTransport("10.0.0.2:5701", dialer)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok, err := transport.InvokeMigration(ctx, addr, partition.MigrationInfo{PartitionID: 0})
	require.NoError(t, err)
	assert.True(t, ok)
}
