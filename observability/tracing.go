package observability

import (
	"context"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"

	"github.com/enset/storefront/common/logger"
)

// StartSpan opens a span and adds its trace and span ids to the context logger. Use it
// instead of tracer.StartSpanFromContext so log lines can be joined with traces.
func StartSpan(ctx context.Context, opName string, opts ...tracer.StartSpanOption) (*tracer.Span, context.Context) {
	span, ctx := tracer.StartSpanFromContext(ctx, opName, opts...)
	ctx = logger.ContextWithFields(ctx, logger.WithTrace(span.Context())...)
	return span, ctx
}
