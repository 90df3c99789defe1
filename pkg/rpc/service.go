// Copyright 2025 Takhin Data, Inc.

package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service path segment partitiond nodes
// register under. It plays the role a generated pb.go's service
// descriptor would: there is no partition.proto, so ServiceDesc below
// is authored by hand against the grpc-go runtime rather than produced
// by protoc-gen-go-grpc.
const ServiceName = "partitiond.v1.PartitionService"

// PartitionServer is implemented by the node-local adapter that
// answers the 7 RPC operations of spec.md §6 plus the migration and
// replica-sync data-plane calls. pkg/rpcserver provides the concrete
// implementation backed by *partition.Service.
type PartitionServer interface {
	AssignPartitions(ctx context.Context, req *AssignPartitionsRequest) (*AssignPartitionsResponse, error)
	PublishState(ctx context.Context, req *PublishStateRequest) (*PublishStateResponse, error)
	CheckVersion(ctx context.Context, req *CheckVersionRequest) (*CheckVersionResponse, error)
	FetchState(ctx context.Context, req *FetchStateRequest) (*FetchStateResponse, error)
	Shutdown(ctx context.Context, req *ShutdownRequest) (*ShutdownResponse, error)
	TriggerMemberListPublish(ctx context.Context, req *TriggerMemberListPublishRequest) (*TriggerMemberListPublishResponse, error)
	InvokeMigration(ctx context.Context, req *InvokeMigrationRequest) (*InvokeMigrationResponse, error)
	RequestReplicaVersions(ctx context.Context, req *RequestReplicaVersionsRequest) (*RequestReplicaVersionsResponse, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func _PartitionService_AssignPartitions_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(AssignPartitionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).AssignPartitions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("AssignPartitions")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).AssignPartitions(ctx, req.(*AssignPartitionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_PublishState_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PublishStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).PublishState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("PublishState")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).PublishState(ctx, req.(*PublishStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_CheckVersion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckVersionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).CheckVersion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("CheckVersion")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).CheckVersion(ctx, req.(*CheckVersionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_FetchState_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(FetchStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).FetchState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("FetchState")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).FetchState(ctx, req.(*FetchStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_Shutdown_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ShutdownRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Shutdown")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).Shutdown(ctx, req.(*ShutdownRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_TriggerMemberListPublish_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(TriggerMemberListPublishRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).TriggerMemberListPublish(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("TriggerMemberListPublish")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).TriggerMemberListPublish(ctx, req.(*TriggerMemberListPublishRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_InvokeMigration_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(InvokeMigrationRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).InvokeMigration(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("InvokeMigration")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).InvokeMigration(ctx, req.(*InvokeMigrationRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _PartitionService_RequestReplicaVersions_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RequestReplicaVersionsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PartitionServer).RequestReplicaVersions(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("RequestReplicaVersions")}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PartitionServer).RequestReplicaVersions(ctx, req.(*RequestReplicaVersionsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is handed to grpc.Server.RegisterService by pkg/rpcserver
// in place of a generated *_ServiceDesc. Method set mirrors
// PartitionServer exactly.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PartitionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AssignPartitions", Handler: _PartitionService_AssignPartitions_Handler},
		{MethodName: "PublishState", Handler: _PartitionService_PublishState_Handler},
		{MethodName: "CheckVersion", Handler: _PartitionService_CheckVersion_Handler},
		{MethodName: "FetchState", Handler: _PartitionService_FetchState_Handler},
		{MethodName: "Shutdown", Handler: _PartitionService_Shutdown_Handler},
		{MethodName: "TriggerMemberListPublish", Handler: _PartitionService_TriggerMemberListPublish_Handler},
		{MethodName: "InvokeMigration", Handler: _PartitionService_InvokeMigration_Handler},
		{MethodName: "RequestReplicaVersions", Handler: _PartitionService_RequestReplicaVersions_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkg/rpc/service.go",
}
