package gin

import (
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/correlation"
)

const (
	httpHandlerOp = "http.handler"
	componentName = "gin"
)

type boundary int

const (
	boundaryNone boundary = iota
	boundaryEdge
	boundaryService
)

type interceptorCfg struct {
	TracingEnabled   bool
	CompressionLevel int
	HTTPDebug        bool
	HTTPTrace        bool
	Timeout          time.Duration
	Boundary         boundary
	Identity         *correlation.Manager
}

type InterceptorOpt func(cfg *interceptorCfg)

// WithEdgeIdentity binds request identity the way the public entry point does: a fresh
// correlation id per request, torn down on completion or client disconnect.
func WithEdgeIdentity(m *correlation.Manager) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Boundary = boundaryEdge
		cfg.Identity = m
	}
}

// WithServiceIdentity binds request identity the way an internal service does.
func WithServiceIdentity(m *correlation.Manager) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Boundary = boundaryService
		cfg.Identity = m
	}
}

// WithTimeout sets the http handler timeout. Default is no timeout.
func WithTimeout(timeout time.Duration) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.Timeout = timeout
	}
}

// WithTracingEnabled enables/disables tracing. Default is enabled.
func WithTracingEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.TracingEnabled = enabled
	}
}

// WithHTTPDebug enables printing log line with request info and duration for every request
func WithHTTPDebug() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
	}
}

// WithHTTPTrace enables deeper http debugging by also printing the whole request and response body
func WithHTTPTrace() InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.HTTPDebug = true
		cfg.HTTPTrace = true
	}
}

// WithCompressionLevel specifies the gzip compression level, default is gzip.DefaultCompression.
// Disable by using gzip.NoCompression.
func WithCompressionLevel(level int) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.CompressionLevel = level
	}
}

// DefaultInterceptors returns all our default interceptors for Gin servers.
// Defaults can be changed by passing any of the WithXXX options.
//
// Order matters: the span exists before identity is bound so it gets tagged, and panic
// recovery sits outside the identity middleware so teardown runs while the panic unwinds.
func DefaultInterceptors(opts ...InterceptorOpt) []gin.HandlerFunc {
	cfg := &interceptorCfg{
		TracingEnabled:   true,
		CompressionLevel: gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var middlewares []gin.HandlerFunc
	if cfg.TracingEnabled {
		middlewares = append(middlewares, TracingMiddleware)
	}
	middlewares = append(middlewares,
		RequestLogging(loggingCfg{
			debug: cfg.HTTPDebug,
			trace: cfg.HTTPTrace,
		}),
		PanicRecoveryMiddleware,
		ErrorHandlingMiddleware,
	)
	switch cfg.Boundary {
	case boundaryEdge:
		middlewares = append(middlewares, EdgeMiddleware(cfg.Identity))
	case boundaryService:
		middlewares = append(middlewares, ServiceBoundaryMiddleware(cfg.Identity))
	}
	if cfg.CompressionLevel != gzip.NoCompression {
		middlewares = append(middlewares, gzip.Gzip(cfg.CompressionLevel))
	}
	if cfg.Timeout > 0 {
		middlewares = append(middlewares, TimeoutMiddleware(cfg.Timeout))
	}

	return middlewares
}
