// Copyright 2025 Takhin Data, Inc.

package rpc

import (
	"context"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer pools client connections by peer address so the transport
// below dials each peer at most once.
type Dialer struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn
}

func NewDialer() *Dialer {
	return &Dialer{conns: make(map[string]*grpc.ClientConn)}
}

func (d *Dialer) conn(addr string) (*grpc.ClientConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cc, ok := d.conns[addr]; ok {
		return cc, nil
	}
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	d.conns[addr] = cc
	return cc, nil
}

// Close tears down every pooled connection.
func (d *Dialer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for addr, cc := range d.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.conns, addr)
	}
	return firstErr
}

// Client issues the 8 partition RPC calls against one peer connection.
// Its method set is what protoc-gen-go-grpc would emit for
// PartitionServer; authored here by hand since there is no
// partition.proto to generate it from.
type Client struct {
	cc *grpc.ClientConn
}

func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) AssignPartitions(ctx context.Context, req *AssignPartitionsRequest) (*AssignPartitionsResponse, error) {
	out := new(AssignPartitionsResponse)
	if err := c.cc.Invoke(ctx, fullMethod("AssignPartitions"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) PublishState(ctx context.Context, req *PublishStateRequest) (*PublishStateResponse, error) {
	out := new(PublishStateResponse)
	if err := c.cc.Invoke(ctx, fullMethod("PublishState"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CheckVersion(ctx context.Context, req *CheckVersionRequest) (*CheckVersionResponse, error) {
	out := new(CheckVersionResponse)
	if err := c.cc.Invoke(ctx, fullMethod("CheckVersion"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) FetchState(ctx context.Context, req *FetchStateRequest) (*FetchStateResponse, error) {
	out := new(FetchStateResponse)
	if err := c.cc.Invoke(ctx, fullMethod("FetchState"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Shutdown(ctx context.Context, req *ShutdownRequest) (*ShutdownResponse, error) {
	out := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Shutdown"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TriggerMemberListPublish(ctx context.Context, req *TriggerMemberListPublishRequest) (*TriggerMemberListPublishResponse, error) {
	out := new(TriggerMemberListPublishResponse)
	if err := c.cc.Invoke(ctx, fullMethod("TriggerMemberListPublish"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InvokeMigration(ctx context.Context, req *InvokeMigrationRequest) (*InvokeMigrationResponse, error) {
	out := new(InvokeMigrationResponse)
	if err := c.cc.Invoke(ctx, fullMethod("InvokeMigration"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RequestReplicaVersions(ctx context.Context, req *RequestReplicaVersionsRequest) (*RequestReplicaVersionsResponse, error) {
	out := new(RequestReplicaVersionsResponse)
	if err := c.cc.Invoke(ctx, fullMethod("RequestReplicaVersions"), req, out); err != nil {
		return nil, err
	}
	return out, nil
}
