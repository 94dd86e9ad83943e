package server

import (
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/enset/storefront/grpc/interceptors"
)

const (
	// DefaultGRPCMaxMsgSize defines the default gRPC max message size in
	// bytes the server can receive or send.
	DefaultGRPCMaxMsgSize = 1024 * 1024 * 10 // 10MB
)

// NewServerWithCustomInterceptorChain creates a gRPC server running the given chains, with
// message limits, keepalive and reflection set up. Unknown methods answer Unimplemented.
// User options are applied last and can override the defaults.
//
//	unary := interceptors.NewDefaultServerUnaryChain("products", interceptors.WithIdentity(m))
//	stream := interceptors.NewDefaultServerStreamChain("products", interceptors.WithIdentity(m))
//	srv := NewServerWithCustomInterceptorChain(unary, stream)
func NewServerWithCustomInterceptorChain(
	unaryChain *interceptors.UnaryServerInterceptorChain,
	streamChain *interceptors.StreamServerInterceptorChain,
	serverOptions ...grpc.ServerOption,
) *grpc.Server {
	unknownHandler := func(_ any, _ grpc.ServerStream) error {
		return status.Error(codes.Unimplemented, "Unknown route")
	}

	baseServerOptions := []grpc.ServerOption{
		grpc.UnknownServiceHandler(unknownHandler),
		grpc.MaxRecvMsgSize(DefaultGRPCMaxMsgSize),
		grpc.MaxSendMsgSize(DefaultGRPCMaxMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    30 * time.Second, // Ping every 30s if no activity.
			Timeout: 10 * time.Second, // Wait 10s for ping ack.
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second, // Clients must wait 5s between pings.
			PermitWithoutStream: true,            // Allow pings even without active streams.
		}),
	}
	if unaryChain != nil {
		baseServerOptions = append(baseServerOptions, grpc.UnaryInterceptor(unaryChain.Commit()))
	}
	if streamChain != nil {
		baseServerOptions = append(baseServerOptions, grpc.StreamInterceptor(streamChain.Commit()))
	}
	baseServerOptions = append(baseServerOptions, serverOptions...)

	grpcServer := grpc.NewServer(baseServerOptions...)
	reflection.Register(grpcServer)
	return grpcServer
}

// RegisterHealth registers the standard health service on s and returns it so callers
// can flip serving states, e.g. to NOT_SERVING when shutdown starts.
func RegisterHealth(s *grpc.Server, services ...string) *health.Server {
	hs := health.NewServer()
	for _, svc := range services {
		hs.SetServingStatus(svc, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	grpc_health_v1.RegisterHealthServer(s, hs)
	return hs
}
