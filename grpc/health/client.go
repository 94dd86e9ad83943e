// Package health probes the gRPC health service of an upstream.
package health

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/enset/storefront/grpc/interceptors"
)

type config struct {
	target      string
	service     string
	dialTimeout time.Duration
	dialOptions []grpc.DialOption
}

// Option is a functional option for configuring the health checker creation.
type Option func(*config)

// WithTarget sets the target address for the gRPC connection (e.g., "localhost:9091").
func WithTarget(target string) Option {
	return func(c *config) {
		c.target = target
	}
}

// WithService sets the service name probed by Status. Default is "" (the whole server).
func WithService(service string) Option {
	return func(c *config) {
		c.service = service
	}
}

// WithDialOptions allows passing custom gRPC DialOptions.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *config) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}

// Checker wraps the gRPC health client and owns its connection. Calls carry the
// correlation headers of the request bound to their context.
type Checker struct {
	client  grpc_health_v1.HealthClient
	conn    *grpc.ClientConn
	target  string
	service string
}

// NewChecker creates a Checker. The connection is established lazily.
// Default target is "localhost:9091", insecure, with a 10s connect timeout.
// The caller should Close it when done.
func NewChecker(serviceName string, opts ...Option) (*Checker, error) {
	c := &config{
		target:      "localhost:9091",
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.target == "" {
		return nil, errors.New("target address is required")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: c.dialTimeout,
		}),
		grpc.WithUnaryInterceptor(interceptors.NewDefaultClientUnaryChain(serviceName).Commit()),
	}, c.dialOptions...)

	conn, err := grpc.NewClient(c.target, dialOpts...)
	if err != nil {
		return nil, errors.Wrapf(err, "creating health client for %s", c.target)
	}
	return &Checker{
		client:  grpc_health_v1.NewHealthClient(conn),
		conn:    conn,
		target:  c.target,
		service: c.service,
	}, nil
}

// Target is the address being probed.
func (h *Checker) Target() string { return h.target }

// Check performs a health check on the specified service.
func (h *Checker) Check(
	ctx context.Context,
	req *grpc_health_v1.HealthCheckRequest,
	opts ...grpc.CallOption,
) (*grpc_health_v1.HealthCheckResponse, error) {
	return h.client.Check(ctx, req, opts...)
}

// Status returns the serving status of the configured service.
func (h *Checker) Status(ctx context.Context) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: h.service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, errors.Wrapf(err, "checking health of %s", h.target)
	}
	return resp.GetStatus(), nil
}

// Close closes the underlying gRPC connection.
func (h *Checker) Close() error {
	if h.conn != nil {
		return h.conn.Close()
	}
	return nil
}
