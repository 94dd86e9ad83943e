package gin

import (
	"fmt"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/logger"
)

// TracingMiddleware continues the trace found in the Datadog headers, or starts one. The
// span is stored in the request context so the identity middleware can tag it, and the
// trace ids are added to the request logger.
func TracingMiddleware(c *gin.Context) {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	spanOpts := []tracer.StartSpanOption{
		tracer.Tag(ext.Component, componentName),
		tracer.Tag(ext.SpanType, ext.SpanTypeWeb),
		tracer.Tag(ext.SpanKind, ext.SpanKindServer),
		tracer.Tag(ext.HTTPMethod, c.Request.Method),
		tracer.Tag(ext.HTTPURL, c.Request.URL.String()),
		tracer.Tag(ext.ResourceName, fmt.Sprintf("%s %s", c.Request.Method, route)),
		tracer.Tag(ext.HTTPRoute, route),
	}
	if sCtx, err := tracer.Extract(tracer.HTTPHeadersCarrier(c.Request.Header)); err == nil && sCtx != nil {
		spanOpts = append(spanOpts, tracer.ChildOf(sCtx))
	}

	span := tracer.StartSpan(httpHandlerOp, spanOpts...)
	defer span.Finish()

	ctx := tracer.ContextWithSpan(c.Request.Context(), span)
	ctx = logger.ContextWithFields(ctx, logger.WithTrace(span.Context())...)
	c.Request = c.Request.WithContext(ctx)
	c.Next()

	span.SetTag(ext.HTTPCode, c.Writer.Status())
	if c.Writer.Status() >= 500 {
		span.SetTag(ext.Error, true)
	}
}
