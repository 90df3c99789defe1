// Copyright 2025 Takhin Data, Inc.

package rpc

import (
	"context"

	"github.com/takhin-data/partitiond/pkg/partition"
)

// Transport implements partition.ServiceTransport, partition.Transport,
// and partition.ReplicaSyncTransport over the gRPC service in
// service.go, satisfying all three of pkg/partition's narrow
// capability interfaces from a single pooled Dialer.
type Transport struct {
	local  string
	dialer *Dialer
}

func NewTransport(localAddress string, dialer *Dialer) *Transport {
	return &Transport{local: localAddress, dialer: dialer}
}

func (t *Transport) client(addr string) (*Client, error) {
	cc, err := t.dialer.conn(addr)
	if err != nil {
		return nil, err
	}
	return NewClient(cc), nil
}

func (t *Transport) AssignPartitions(ctx context.Context, master string) (*partition.RuntimeState, error) {
	c, err := t.client(master)
	if err != nil {
		return nil, err
	}
	resp, err := c.AssignPartitions(ctx, &AssignPartitionsRequest{Requester: t.local})
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (t *Transport) PublishState(ctx context.Context, peer string, state partition.RuntimeState, wantAck bool) (bool, error) {
	c, err := t.client(peer)
	if err != nil {
		return false, err
	}
	resp, err := c.PublishState(ctx, &PublishStateRequest{State: state, WantAck: wantAck})
	if err != nil {
		return false, err
	}
	return resp.Acked, nil
}

func (t *Transport) CheckVersion(ctx context.Context, peer string, version int) (bool, error) {
	c, err := t.client(peer)
	if err != nil {
		return false, err
	}
	resp, err := c.CheckVersion(ctx, &CheckVersionRequest{Version: version})
	if err != nil {
		return false, err
	}
	return resp.UpToDate, nil
}

func (t *Transport) FetchState(ctx context.Context, peer string) (*partition.RuntimeState, error) {
	c, err := t.client(peer)
	if err != nil {
		return nil, err
	}
	resp, err := c.FetchState(ctx, &FetchStateRequest{})
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (t *Transport) SendShutdownRequest(ctx context.Context, master string) error {
	c, err := t.client(master)
	if err != nil {
		return err
	}
	_, err = c.Shutdown(ctx, &ShutdownRequest{Address: t.local})
	return err
}

func (t *Transport) TriggerMemberListPublish(ctx context.Context, master string) error {
	c, err := t.client(master)
	if err != nil {
		return err
	}
	_, err = c.TriggerMemberListPublish(ctx, &TriggerMemberListPublishRequest{})
	return err
}

// InvokeMigration satisfies partition.Transport, used by C2's executor
// to ask the source replica to hand a partition to its destination.
func (t *Transport) InvokeMigration(ctx context.Context, source string, m partition.MigrationInfo) (bool, error) {
	c, err := t.client(source)
	if err != nil {
		return false, err
	}
	resp, err := c.InvokeMigration(ctx, &InvokeMigrationRequest{Migration: m})
	if err != nil {
		return false, err
	}
	return resp.Success, nil
}

// RequestReplicaVersions satisfies partition.ReplicaSyncTransport, used
// by C3 to ask a partition's owner for its backups' replica versions.
func (t *Transport) RequestReplicaVersions(ctx context.Context, owner string, partitionIDs []int) error {
	c, err := t.client(owner)
	if err != nil {
		return err
	}
	_, err = c.RequestReplicaVersions(ctx, &RequestReplicaVersionsRequest{Owner: owner, PartitionIDs: partitionIDs})
	return err
}
