// Copyright 2025 Takhin Data, Inc.

package rpcserver

import (
	"context"

	"github.com/takhin-data/partitiond/pkg/partition"
	"github.com/takhin-data/partitiond/pkg/rpc"
)

// Handler adapts a *partition.Service to rpc.PartitionServer, translating
// between wire request/response structs and the service's domain calls.
type Handler struct {
	service *partition.Service
}

func NewHandler(service *partition.Service) *Handler {
	return &Handler{service: service}
}

var _ rpc.PartitionServer = (*Handler)(nil)

func (h *Handler) AssignPartitions(ctx context.Context, req *rpc.AssignPartitionsRequest) (*rpc.AssignPartitionsResponse, error) {
	state, err := h.service.HandleAssignPartitionsRequest(ctx)
	if err != nil {
		return nil, err
	}
	return &rpc.AssignPartitionsResponse{State: state}, nil
}

func (h *Handler) PublishState(ctx context.Context, req *rpc.PublishStateRequest) (*rpc.PublishStateResponse, error) {
	applied, err := h.service.ProcessPartitionRuntimeState(req.State)
	if err != nil {
		return nil, err
	}
	return &rpc.PublishStateResponse{Acked: applied}, nil
}

func (h *Handler) CheckVersion(ctx context.Context, req *rpc.CheckVersionRequest) (*rpc.CheckVersionResponse, error) {
	return &rpc.CheckVersionResponse{UpToDate: h.service.IsVersionCurrent(req.Version)}, nil
}

func (h *Handler) FetchState(ctx context.Context, req *rpc.FetchStateRequest) (*rpc.FetchStateResponse, error) {
	state := h.service.Snapshot()
	return &rpc.FetchStateResponse{State: &state}, nil
}

func (h *Handler) Shutdown(ctx context.Context, req *rpc.ShutdownRequest) (*rpc.ShutdownResponse, error) {
	h.service.HandleShutdownRequest(req.Address)
	return &rpc.ShutdownResponse{}, nil
}

func (h *Handler) TriggerMemberListPublish(ctx context.Context, req *rpc.TriggerMemberListPublishRequest) (*rpc.TriggerMemberListPublishResponse, error) {
	h.service.HandleTriggerMemberListPublish()
	return &rpc.TriggerMemberListPublishResponse{}, nil
}

func (h *Handler) InvokeMigration(ctx context.Context, req *rpc.InvokeMigrationRequest) (*rpc.InvokeMigrationResponse, error) {
	ok, err := h.service.HandleMigrationInvoke(ctx, req.Migration)
	if err != nil {
		return nil, err
	}
	return &rpc.InvokeMigrationResponse{Success: ok}, nil
}

// RequestReplicaVersions is received by a partition's owner from a
// backup holder asking to compare replica versions. The sync itself is
// tracked entirely on the requester's side (see ReplicaManager); the
// owner has nothing to persist here beyond acknowledging the request.
func (h *Handler) RequestReplicaVersions(ctx context.Context, req *rpc.RequestReplicaVersionsRequest) (*rpc.RequestReplicaVersionsResponse, error) {
	return &rpc.RequestReplicaVersionsResponse{}, nil
}
