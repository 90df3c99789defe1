// Copyright 2025 Takhin Data, Inc.

// Package rpcserver wires the partition RPC service (pkg/rpc) into a
// real *grpc.Server with this lifecycle:
// a listener, keepalive-tuned ServerOptions, the standard health and
// reflection services, and graceful-stop-with-timeout semantics.
package rpcserver

import (
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/takhin-data/partitiond/pkg/logger"
	"github.com/takhin-data/partitiond/pkg/rpc"
)

const healthServiceName = rpc.ServiceName

// Server manages the partition RPC gRPC server's lifecycle.
type Server struct {
	server       *grpc.Server
	listener     net.Listener
	logger       *logger.Logger
	healthServer *health.Server
}

// New starts listening on addr and registers handler, the health
// service, and reflection. It does not begin serving until Start is
// called.
func New(addr string, handler rpc.PartitionServer) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(10 * 1024 * 1024),
		grpc.MaxSendMsgSize(10 * 1024 * 1024),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             1 * time.Minute,
			PermitWithoutStream: true,
		}),
	}

	grpcServer := grpc.NewServer(opts...)
	grpcServer.RegisterService(&rpc.ServiceDesc, handler)

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(grpcServer)

	return &Server{
		server:       grpcServer,
		listener:     listener,
		logger:       logger.Default().WithComponent("rpc-server"),
		healthServer: healthServer,
	}, nil
}

// Start blocks serving incoming connections until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("starting partition rpc server", "addr", s.listener.Addr().String())
	if err := s.server.Serve(s.listener); err != nil {
		return fmt.Errorf("rpc server exited: %w", err)
	}
	return nil
}

// Stop drains in-flight RPCs, forcing a hard stop if that takes too
// long.
func (s *Server) Stop() {
	s.logger.Info("stopping partition rpc server")
	s.healthServer.SetServingStatus(healthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		s.logger.Info("partition rpc server stopped gracefully")
	case <-time.After(30 * time.Second):
		s.logger.Warn("graceful stop timed out, forcing stop")
		s.server.Stop()
	}
}

// Addr returns the server's listening address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
