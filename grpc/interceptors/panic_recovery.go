package interceptors

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/enset/storefront/common/env"
	"github.com/enset/storefront/common/logger"
)

// UnaryPanicRecoveryServerInterceptor turns a handler panic into codes.Internal, logging
// it with the request's logger and marking the span as failed.
func UnaryPanicRecoveryServerInterceptor() grpc.UnaryServerInterceptor {
	return grpcrecovery.UnaryServerInterceptor(grpcrecovery.WithRecoveryHandlerContext(recoverPanic))
}

// StreamPanicRecoveryServerInterceptor is UnaryPanicRecoveryServerInterceptor for streams.
func StreamPanicRecoveryServerInterceptor() grpc.StreamServerInterceptor {
	return grpcrecovery.StreamServerInterceptor(grpcrecovery.WithRecoveryHandlerContext(recoverPanic))
}

func recoverPanic(ctx context.Context, panicValue any) error {
	logger.FromContext(ctx).Error("Recovered from panic in gRPC handler", logger.WithPanic(panicValue)...)
	if env.IsLocalApplicationEnv() {
		// pretty print the stack trace to the local console to make it human-readable
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
	}

	if span, ok := tracer.SpanFromContext(ctx); ok {
		span.SetTag(ext.Error, true)
		span.SetTag(ext.ErrorType, "panic")
		span.SetTag(ext.ErrorMsg, codes.Internal.String())
	}

	// don't expose internal panic details
	return status.Error(codes.Internal, "Internal server error occurred")
}
