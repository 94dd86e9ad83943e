package interceptors

import (
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc/codes"
)

const (
	DefaultInterceptorLogLevel      zapcore.Level = zapcore.InfoLevel
	DefaultInterceptorErrorLogLevel zapcore.Level = zapcore.WarnLevel
)

// loggingConfig decides which calls the logging interceptor writes and at which level.
// Failed calls are always written; successful ones only while enabled.
type loggingConfig struct {
	enabled       bool
	payloads      bool
	level         zapcore.Level
	errorLevel    zapcore.Level
	codeLevels    map[codes.Code]zapcore.Level
	skippedMethod map[string]struct{}
}

// LoggingInterceptorOption configures UnaryLoggerServerInterceptor.
type LoggingInterceptorOption func(*loggingConfig)

// LogEnabled turns logging of successful calls on or off.
func LogEnabled(v bool) LoggingInterceptorOption {
	return func(o *loggingConfig) { o.enabled = v }
}

// LogPayloads adds the request and response messages to each line.
func LogPayloads(v bool) LoggingInterceptorOption {
	return func(o *loggingConfig) { o.payloads = v }
}

// LogLevel is the level of successful calls.
func LogLevel(level zapcore.Level) LoggingInterceptorOption {
	return func(o *loggingConfig) { o.level = level }
}

// ErrorLogLevel is the level of failed calls whose code has no level of its own.
func ErrorLogLevel(level zapcore.Level) LoggingInterceptorOption {
	return func(o *loggingConfig) { o.errorLevel = level }
}

// GrpcCodeLogLevel sets the level of failed calls per status code. Repeated options
// merge; codes.OK is ignored.
func GrpcCodeLogLevel(levels map[codes.Code]zapcore.Level) LoggingInterceptorOption {
	return func(o *loggingConfig) {
		if o.codeLevels == nil {
			o.codeLevels = make(map[codes.Code]zapcore.Level, len(levels))
		}
		for code, level := range levels {
			if code != codes.OK {
				o.codeLevels[code] = level
			}
		}
	}
}

// WithSkippedLogsByMethods silences the given full method names, e.g. health probes.
func WithSkippedLogsByMethods(methods ...string) LoggingInterceptorOption {
	return func(o *loggingConfig) {
		if o.skippedMethod == nil {
			o.skippedMethod = make(map[string]struct{}, len(methods))
		}
		for _, method := range methods {
			o.skippedMethod[method] = struct{}{}
		}
	}
}

func newLoggingConfig(opts ...LoggingInterceptorOption) *loggingConfig {
	cfg := &loggingConfig{
		enabled:    true,
		level:      DefaultInterceptorLogLevel,
		errorLevel: DefaultInterceptorErrorLogLevel,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *loggingConfig) skipped(fullMethod string) bool {
	_, ok := c.skippedMethod[fullMethod]
	return ok
}

func (c *loggingConfig) levelFor(code codes.Code) zapcore.Level {
	if code == codes.OK {
		return c.level
	}
	if level, ok := c.codeLevels[code]; ok {
		return level
	}
	return c.errorLevel
}
