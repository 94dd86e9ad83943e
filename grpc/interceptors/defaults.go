package interceptors

import (
	"time"

	grpctrace "github.com/DataDog/dd-trace-go/contrib/google.golang.org/grpc/v2"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"

	"github.com/enset/storefront/common/correlation"
)

const (
	healthCheckMethod = "/grpc.health.v1.Health/Check"
	healthWatchMethod = "/grpc.health.v1.Health/Watch"
)

// Config holds the options of the default server chain.
type Config struct {
	RequestTimeout       time.Duration
	ServiceName          string
	TracingEnabled       bool
	PanicRecoveryEnabled bool
	Identity             *correlation.Manager
	LoggingOptions       []LoggingInterceptorOption
}

// ConfigOption is a functional option for configuring the interceptor chain
type ConfigOption func(*Config)

// WithRequestTimeout sets the server-side request timeout. Zero disables it.
func WithRequestTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = timeout
	}
}

// WithTracingEnabled enables/disables the DataDog interceptor. Default is enabled.
func WithTracingEnabled(enabled bool) ConfigOption {
	return func(c *Config) {
		c.TracingEnabled = enabled
	}
}

// WithPanicRecovery enables or disables the panic recovery interceptor. Default is enabled.
func WithPanicRecovery(enabled bool) ConfigOption {
	return func(c *Config) {
		c.PanicRecoveryEnabled = enabled
	}
}

// WithIdentity binds every call's identity through m.
func WithIdentity(m *correlation.Manager) ConfigOption {
	return func(c *Config) {
		c.Identity = m
	}
}

// WithLoggingOptions appends logging options.
func WithLoggingOptions(opts ...LoggingInterceptorOption) ConfigOption {
	return func(c *Config) {
		c.LoggingOptions = append(c.LoggingOptions, opts...)
	}
}

// NewConfig creates a new configuration with sensible defaults
func NewConfig(serviceName string, opts ...ConfigOption) *Config {
	config := &Config{
		RequestTimeout:       30 * time.Second,
		ServiceName:          serviceName,
		TracingEnabled:       true,
		PanicRecoveryEnabled: true,
		LoggingOptions: []LoggingInterceptorOption{
			LogEnabled(true),
			LogLevel(zapcore.InfoLevel),
			WithSkippedLogsByMethods(healthCheckMethod, healthWatchMethod),
			GrpcCodeLogLevel(map[codes.Code]zapcore.Level{ //nolint:exhaustive
				codes.Canceled:        zapcore.WarnLevel,
				codes.Unauthenticated: zapcore.WarnLevel,
			}),
		},
	}
	for _, opt := range opts {
		opt(config)
	}
	return config
}

// NewDefaultServerUnaryChain creates the unary server chain:
//
//	server-deadline -> trace -> identity -> logger -> errors -> panic-recovery -> handler
//
// The span exists before identity is bound so it gets tagged, and the logger runs inside
// the scope so its lines carry the correlation fields.
func NewDefaultServerUnaryChain(serviceName string, opts ...ConfigOption) *UnaryServerInterceptorChain {
	cfg := NewConfig(serviceName, opts...)
	chain := NewUnaryServerInterceptorChain()

	if cfg.RequestTimeout > 0 {
		chain.Push("server-deadline", ServerDeadlineInterceptor(cfg.RequestTimeout))
	}
	if cfg.TracingEnabled {
		chain.Push("trace", grpctrace.UnaryServerInterceptor(
			grpctrace.WithService(cfg.ServiceName),
			grpctrace.WithUntracedMethods(healthCheckMethod),
		))
	}
	if cfg.Identity != nil {
		chain.Push("identity", UnaryIdentityServerInterceptor(cfg.Identity))
	}
	chain.Push("logger", UnaryLoggerServerInterceptor(cfg.LoggingOptions...))
	chain.Push("errors", UnaryErrorServerInterceptor)
	if cfg.PanicRecoveryEnabled {
		chain.Push("panic-recovery", UnaryPanicRecoveryServerInterceptor())
	}
	return chain
}

// NewDefaultServerStreamChain is NewDefaultServerUnaryChain for streaming calls, without
// the deadline and the per-call log line.
func NewDefaultServerStreamChain(serviceName string, opts ...ConfigOption) *StreamServerInterceptorChain {
	cfg := NewConfig(serviceName, opts...)
	chain := NewStreamServerInterceptorChain()

	if cfg.TracingEnabled {
		chain.Push("trace", grpctrace.StreamServerInterceptor(
			grpctrace.WithService(cfg.ServiceName),
			grpctrace.WithUntracedMethods(healthWatchMethod),
		))
	}
	if cfg.Identity != nil {
		chain.Push("identity", StreamIdentityServerInterceptor(cfg.Identity))
	}
	if cfg.PanicRecoveryEnabled {
		chain.Push("panic-recovery", StreamPanicRecoveryServerInterceptor())
	}
	return chain
}

// NewDefaultClientUnaryChain creates the unary client chain: a client span, then the
// correlation headers of the calling request.
func NewDefaultClientUnaryChain(serviceName string) *UnaryClientInterceptorChain {
	chain := NewUnaryClientInterceptorChain()
	chain.Push("tracer", grpctrace.UnaryClientInterceptor(
		grpctrace.WithService(serviceName),
	))
	chain.Push("identity", UnaryIdentityClientInterceptor)
	return chain
}
