// Package observability starts the DataDog tracer the HTTP and gRPC interceptors report to.
package observability

import (
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"

	"github.com/enset/storefront/common/logger"
)

type config struct {
	Enabled          bool
	MetricsEnabled   bool
	AnalyticsEnabled bool
	DebugStack       bool
	AgentAddr        string
}

type Option func(o *config)

// WithEnabled enables/disables the tracer altogether. Default enabled.
// When disabled, spans opened by the interceptors are no-ops.
func WithEnabled(enabled bool) Option {
	return func(c *config) {
		c.Enabled = enabled
	}
}

// WithMetrics enables/disables collection of Go Runtime Metrics. Default enabled.
// When enabled, pushes metrics to DataDog every few seconds.
func WithMetrics(enabled bool) Option {
	return func(c *config) {
		c.MetricsEnabled = enabled
	}
}

// WithAnalytics enables/disables trace analytics. Default enabled.
func WithAnalytics(enabled bool) Option {
	return func(c *config) {
		c.AnalyticsEnabled = enabled
	}
}

// WithDebugStack enables/disables capture of stack traces when an error is set on a span. Default disabled.
func WithDebugStack(enabled bool) Option {
	return func(c *config) {
		c.DebugStack = enabled
	}
}

// WithAgentAddr sets the host:port of the DataDog agent. Default is the tracer's own
// (DD_AGENT_HOST or localhost:8126).
func WithAgentAddr(addr string) Option {
	return func(c *config) {
		c.AgentAddr = addr
	}
}

// InitObservability starts the tracer with sensible defaults that can be overridden.
// The returned function flushes and stops it; it is safe to call when tracing is disabled.
func InitObservability(serviceName, env string, log *logger.Logger, opts ...Option) (stop func()) {
	cfg := &config{
		Enabled:          true,
		MetricsEnabled:   true,
		AnalyticsEnabled: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if !cfg.Enabled {
		log.Info("Tracing disabled")
		return func() {}
	}

	log.Info("Starting tracer", logger.String("service", serviceName), logger.String("env", env))
	tracerOpts := []tracer.StartOption{
		tracer.WithEnv(env),
		tracer.WithService(serviceName),
		tracer.WithLogger(logger.NewAdapter(log)),
		tracer.WithDebugStack(cfg.DebugStack),
		tracer.WithAnalytics(cfg.AnalyticsEnabled),
	}
	if cfg.AgentAddr != "" {
		tracerOpts = append(tracerOpts, tracer.WithAgentAddr(cfg.AgentAddr))
	}
	if cfg.MetricsEnabled {
		tracerOpts = append(tracerOpts, tracer.WithRuntimeMetrics())
	}

	if err := tracer.Start(tracerOpts...); err != nil {
		log.Error("Failed to start tracer", logger.Error(err))
		return func() {}
	}
	return tracer.Stop
}
