package interceptors

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/enset/storefront/common/logger"
)

const (
	durationKey   = "duration"
	serviceKey    = "service"
	methodKey     = "method"
	grpcStatusKey = "status"
	requestKey    = "request"
	responseKey   = "response"
)

// UnaryLoggerServerInterceptor writes one line per unary call with its method, duration
// and status through the request's logger.
func UnaryLoggerServerInterceptor(opts ...LoggingInterceptorOption) grpc.UnaryServerInterceptor {
	config := newLoggingConfig(opts...)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if config.skipped(info.FullMethod) {
			return handler(ctx, req)
		}

		grpcService, grpcMethod := GetServiceAndMethod(info.FullMethod)
		log := logger.FromContext(ctx).With(
			logger.String(serviceKey, grpcService),
			logger.String(methodKey, grpcMethod),
		)
		ctx = logger.ContextWithLogger(ctx, log)

		start := time.Now()
		resp, err := handler(ctx, req)
		if !config.enabled && err == nil {
			return resp, nil
		}

		code := status.Code(err)
		fields := []zapcore.Field{
			zap.Duration(durationKey, time.Since(start)),
			zap.String(grpcStatusKey, code.String()),
		}
		if config.payloads {
			fields = append(fields, PbField(requestKey, req))
			if resp != nil {
				fields = append(fields, PbField(responseKey, resp))
			}
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		// interceptor stacks are not useful
		log.WithOptions(zap.AddStacktrace(zap.FatalLevel)).
			Check(config.levelFor(code), "server.request").
			Write(fields...)
		return resp, err
	}
}

// GetServiceAndMethod splits a full gRPC method path.
// Input format: "/grpc.health.v1.Health/Check"
// Output: service="grpc.health.v1.Health", method="Check"
func GetServiceAndMethod(fullMethod string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok || service == "" || method == "" {
		return "unknown", fullMethod
	}
	return service, method
}

// PbField wraps a protobuf message in a zap Field for structured logging.
func PbField(key string, pb any) zapcore.Field {
	if pbMsg, ok := pb.(proto.Message); ok {
		return zap.Object(key, &pbZapField{pbMsg})
	}
	return zap.Any(key, pb)
}

type pbZapField struct {
	pb proto.Message
}

func (p *pbZapField) MarshalLogObject(e zapcore.ObjectEncoder) error {
	return e.AddReflected("payload", p)
}

func (p *pbZapField) MarshalJSON() ([]byte, error) {
	b, err := protojson.Marshal(p.pb)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling protobuf message to JSON")
	}
	return b, nil
}
