package resty

import (
	"fmt"
	"net/url"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/logger"
)

const (
	httpRequestOp      = "http.request"
	restyComponentName = "resty"
)

type interceptorCfg struct {
	TracingEnabled     bool
	PropagationEnabled bool
	// no timeout specified, that is handled by the underlying http client config
}

type InterceptorOpt func(*interceptorCfg)

// WithPropagationEnabled enables/disables writing X-Trace-Id and X-User. Default is enabled.
func WithPropagationEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.PropagationEnabled = enabled
	}
}

// WithTracingEnabled enables/disables tracing. Default is enabled.
func WithTracingEnabled(enabled bool) InterceptorOpt {
	return func(cfg *interceptorCfg) {
		cfg.TracingEnabled = enabled
	}
}

// InjectInterceptors makes every request of client carry the trace and the correlation
// headers of the request bound to its context.
// Default behaviour can be changed by passing any of the WithXXX options.
func InjectInterceptors(client *resty.Client, opts ...InterceptorOpt) {
	cfg := &interceptorCfg{
		TracingEnabled:     true,
		PropagationEnabled: true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.TracingEnabled {
		before, after, onError := TracingMiddleware()
		client.OnBeforeRequest(before)
		client.OnAfterResponse(after)
		client.OnError(onError)
	}
	if cfg.PropagationEnabled {
		client.OnBeforeRequest(PropagationMiddleware())
	}
}

// TracingMiddleware opens a client span per request and injects it into the headers. The
// span is finished with the response status, or with the error when no response came back.
func TracingMiddleware() (resty.RequestMiddleware, resty.ResponseMiddleware, resty.ErrorHook) {
	beforeRequest := func(_ *resty.Client, req *resty.Request) error {
		opts := []tracer.StartSpanOption{
			tracer.SpanType(ext.SpanTypeHTTP),
			tracer.Tag(ext.HTTPMethod, req.Method),
			tracer.Tag(ext.HTTPURL, req.URL),
			tracer.Tag(ext.Component, restyComponentName),
			tracer.Tag(ext.SpanKind, ext.SpanKindClient),
		}
		if parsedURL, err := url.Parse(req.URL); err == nil {
			opts = append(opts,
				tracer.Tag(ext.NetworkDestinationName, parsedURL.Hostname()),
				tracer.Tag("http.host", parsedURL.Host),
				tracer.Tag("http.path", parsedURL.Path),
			)
		}

		span, ctx := tracer.StartSpanFromContext(req.Context(), httpRequestOp, opts...)
		req.SetContext(ctx)

		if err := tracer.Inject(span.Context(), tracer.HTTPHeadersCarrier(req.Header)); err != nil {
			logger.FromContext(ctx).Debug("trace headers not injected", logger.Error(err))
		}
		return nil
	}

	afterResponse := func(_ *resty.Client, resp *resty.Response) error {
		span, ok := tracer.SpanFromContext(resp.Request.Context())
		if !ok {
			return nil
		}
		span.SetTag(ext.HTTPCode, resp.StatusCode())
		span.SetTag("http.response_size", resp.Size())

		if resp.StatusCode() >= 400 {
			span.SetTag(ext.Error, true)
			span.SetTag(ext.ErrorMsg, fmt.Sprintf("HTTP %d: %s", resp.StatusCode(), resp.Status()))
		}
		span.Finish()

		return nil
	}

	onError := func(req *resty.Request, err error) {
		var respErr *resty.ResponseError
		if errors.As(err, &respErr) {
			// afterResponse already finished the span.
			return
		}
		span, ok := tracer.SpanFromContext(req.Context())
		if !ok {
			return
		}
		span.Finish(tracer.WithError(err))
	}

	return beforeRequest, afterResponse, onError
}

// PropagationMiddleware writes X-Trace-Id and X-User from the request bound to the
// outbound request's context. Requests made outside any bound request are sent as is.
func PropagationMiddleware() resty.RequestMiddleware {
	return func(_ *resty.Client, req *resty.Request) error {
		correlation.Propagate(req.Context(), req.Header)
		return nil
	}
}
