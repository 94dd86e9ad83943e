package gin

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/ext"
	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/env"
	"github.com/enset/storefront/common/logger"
)

const (
	errorInternal = "internal_error"
	errorTimeout  = "timeout"
)

// ErrorHandlingMiddleware answers for the last error a handler attached with c.Error,
// unless the handler already wrote a response. Deadline errors answer 504, a caller that
// went away gets nothing, anything else is a 500. Bodies carry the trace id so callers
// can quote it.
func ErrorHandlingMiddleware(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 {
		return
	}
	ctx := c.Request.Context()
	err := c.Errors.Last().Err
	log := logger.FromContext(ctx).With(logger.String("path", c.FullPath()), logger.Error(err))

	switch {
	case errors.Is(err, context.Canceled):
		log.Info("caller went away")
		return
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("request timed out")
		tagSpanAsError(ctx, errorTimeout, err.Error())
		writeError(c, http.StatusGatewayTimeout, errorTimeout)
		return
	}

	log.Error("Error in gin http handler")
	if env.IsLocalApplicationEnv() {
		// human-readable stack trace on the local console
		_, _ = fmt.Fprintf(os.Stderr, "Error in gin http handler: %+v\n", err)
	}
	tagSpanAsError(ctx, "internal", err.Error())
	writeError(c, http.StatusInternalServerError, errorInternal)
}

// PanicRecoveryMiddleware turns a handler panic into a logged 500 and tags the span.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func PanicRecoveryMiddleware(c *gin.Context) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if r == http.ErrAbortHandler { //nolint:errorlint
			panic(r)
		}
		logger.FromContext(c.Request.Context()).Error("Recovered from panic in gin http handler", logger.WithPanic(r)...)
		if env.IsLocalApplicationEnv() {
			_, _ = fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
		}
		tagSpanAsError(c.Request.Context(), "panic", fmt.Sprintf("%v", r))
		c.Abort()
		writeError(c, http.StatusInternalServerError, errorInternal)
	}()
	c.Next()
}

func writeError(c *gin.Context, status int, code string) {
	if c.Writer.Written() {
		return
	}
	body := gin.H{"error": code}
	// The scope is usually torn down by now; its id is still the one to quote.
	if scope, ok := correlation.ScopeFromContext(c.Request.Context()); ok {
		body["traceId"] = scope.RequestContext().CorrelationID()
	}
	c.JSON(status, body)
}

func tagSpanAsError(ctx context.Context, errorType string, errorMsg string) {
	span, ok := tracer.SpanFromContext(ctx)
	if ok {
		span.SetTag(ext.Error, true)
		span.SetTag(ext.ErrorType, errorType)
		span.SetTag(ext.ErrorMsg, errorMsg)
	}
}

// TimeoutMiddleware bounds the request context. Handlers and downstream calls that honor
// the context fail with context.DeadlineExceeded once it expires.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
