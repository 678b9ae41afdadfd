package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// AuthServiceName is the service name reported on the gRPC health endpoint.
const AuthServiceName = "otp.auth.v1.AuthService"

// NewGRPCServer returns a gRPC server exposing grpc.health.v1 with otelgrpc instrumentation.
// The returned health server starts NOT_SERVING for AuthServiceName until readiness is synced.
func NewGRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	hs.SetServingStatus(AuthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}
