package interceptors

import (
	"context"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	statusCanceled         = status.New(codes.Canceled, "context canceled")          //nolint:gochecknoglobals
	statusDeadlineExceeded = status.New(codes.DeadlineExceeded, "deadline exceeded") //nolint:gochecknoglobals
)

// contextStatusError wraps a gRPC status with the original context error.
type contextStatusError struct {
	*status.Status
	error
}

func (e *contextStatusError) GRPCStatus() *status.Status { return e.Status }

func (e *contextStatusError) Unwrap() error { return e.error }

// UnaryErrorServerInterceptor maps context errors returned by handlers to Canceled and
// DeadlineExceeded, and tags the span of every failed call.
func UnaryErrorServerInterceptor(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, context.Canceled):
		err = &contextStatusError{Status: statusCanceled, error: err}
	case errors.Is(err, context.DeadlineExceeded):
		err = &contextStatusError{Status: statusDeadlineExceeded, error: err}
	}
	tagSpanError(ctx, err)
	return resp, err
}

func tagSpanError(ctx context.Context, err error) {
	span, ok := tracer.SpanFromContext(ctx)
	if !ok {
		return
	}
	span.SetTag(ext.Error, true)
	if s, isStatus := status.FromError(err); isStatus {
		span.SetTag("rpc.grpc.status_code", s.Code())
		span.SetTag("rpc.grpc.status_message", s.Message())
		return
	}
	span.SetTag(ext.ErrorType, "system")
	span.SetTag(ext.ErrorMsg, err.Error())
}
