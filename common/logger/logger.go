package logger

import (
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/enset/storefront/common/env"
)

const (
	StringJSONEncoderName = "string_json"
	MessageKey            = "message"
)

// Logger is the structured logger every storefront component writes through.
// The embedded *zap.Logger exposes the usual Info/Warn/Error methods.
type Logger struct {
	*zap.Logger
}

var (
	instance     *Logger
	instanceErr  error
	instanceOnce sync.Once

	registerErr  error
	registerOnce sync.Once
)

// NewLogger wraps l. A nil l yields a no-op logger.
func NewLogger(l *zap.Logger) *Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &Logger{Logger: l}
}

// Instance returns the process logger, building it from ENVIRONMENT on first use.
func Instance() (*Logger, error) {
	instanceOnce.Do(func() {
		zl, err := InitLogger()
		if err != nil {
			instanceErr = err
			return
		}
		instance = NewLogger(zl)
	})
	return instance, instanceErr
}

// Default returns the process logger, or a no-op logger when the environment is not configured.
func Default() *Logger {
	l, err := Instance()
	if err != nil || l == nil {
		return NewLogger(nil)
	}
	return l
}

// With returns a child logger carrying fields.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...)}
}

// Log writes msg at level.
func (l *Logger) Log(level Level, msg string, fields ...Field) {
	if ce := l.Check(zapcore.Level(level), msg); ce != nil {
		ce.Write(fields...)
	}
}

type stringJSONEncoder struct {
	zapcore.Encoder
}

func newStringJSONEncoder(cfg zapcore.EncoderConfig) *stringJSONEncoder {
	return &stringJSONEncoder{zapcore.NewJSONEncoder(cfg)}
}

// NewStringJSONEncoder returns an encoder that encodes the JSON log dict as a string
// so the log processing pipeline can correctly process logs with nested JSON.
func NewStringJSONEncoder(cfg zapcore.EncoderConfig) (zapcore.Encoder, error) {
	return newStringJSONEncoder(cfg), nil
}

// InitLogger builds a zap logger configured for the current ENVIRONMENT.
func InitLogger(zapOpts ...zap.Option) (*zap.Logger, error) {
	currentEnv, err := env.FromString(os.Getenv(env.ApplicationEnvKey))
	if err != nil {
		return nil, errors.Wrap(err, "invalid environment")
	}

	// zap keeps a process-wide encoder registry and refuses duplicates.
	registerOnce.Do(func() {
		registerErr = zap.RegisterEncoder(StringJSONEncoderName, NewStringJSONEncoder)
	})
	if registerErr != nil {
		return nil, errors.Wrap(registerErr, "failed to register string JSON encoder")
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		FunctionKey:   zapcore.OmitKey,
		MessageKey:    MessageKey,
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	var config zap.Config
	switch currentEnv {
	case env.EnvironmentLocal:
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.MessageKey = MessageKey
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	case env.EnvironmentProduction:
		config = zap.NewProductionConfig()
		config.EncoderConfig = encoderConfig
		config.Encoding = StringJSONEncoderName
		config.Level.SetLevel(zap.InfoLevel)

	default:
		// JSON logs for Datadog ingestion
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig = encoderConfig
		config.Encoding = StringJSONEncoderName
	}

	options := append([]zap.Option{zap.AddStacktrace(zap.ErrorLevel)}, zapOpts...)

	l, err := config.Build(options...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize logger")
	}
	return l, nil
}
