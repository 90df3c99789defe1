// Copyright 2025 Takhin Data, Inc.

// Package rpc defines the wire contract for the partition coordination
// calls in spec.md: assignment requests, partition table publication,
// version checks, state fetch during master takeover, shutdown
// coordination, membership list triggers, and migration invocation.
//
// There is no .proto source for these messages. The request and
// response shapes here are plain Go structs; they ride over gRPC using
// the gob codec registered in codec.go rather than protobuf wire
// encoding.
package rpc

import (
	"github.com/takhin-data/partitiond/pkg/partition"
)

type AssignPartitionsRequest struct {
	Requester string
}

type AssignPartitionsResponse struct {
	State *partition.RuntimeState
}

type PublishStateRequest struct {
	State   partition.RuntimeState
	WantAck bool
}

type PublishStateResponse struct {
	Acked bool
}

type CheckVersionRequest struct {
	Version int
}

type CheckVersionResponse struct {
	UpToDate bool
}

type FetchStateRequest struct{}

type FetchStateResponse struct {
	State *partition.RuntimeState
}

type ShutdownRequest struct {
	Address string
}

type ShutdownResponse struct{}

type TriggerMemberListPublishRequest struct{}

type TriggerMemberListPublishResponse struct{}

type InvokeMigrationRequest struct {
	Migration partition.MigrationInfo
}

type InvokeMigrationResponse struct {
	Success bool
}

type RequestReplicaVersionsRequest struct {
	Owner        string
	PartitionIDs []int
}

type RequestReplicaVersionsResponse struct{}
