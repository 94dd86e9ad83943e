package interceptors

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

// ServerDeadlineInterceptor caps the time a unary call may run. A shorter deadline set by
// the client still wins.
func ServerDeadlineInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context, req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}
