// Package correlation binds a per-request context (correlation id, caller identity, client
// address) for the lifetime of one request and propagates it to downstream calls.
//
// A boundary adapter calls Manager.Begin when a request enters, and Scope.End exactly once
// when it leaves. In between:
//   - Scope.Context carries a logger enriched with correlation_id, user and client_ip
//   - FromContext returns the bound RequestContext
//   - Propagate writes X-Trace-Id and X-User on an outbound header set
package correlation

import (
	"context"
	"net/http"

	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
)

// Log field names every request-scoped log line carries.
const (
	FieldCorrelationID = "correlation_id"
	FieldUser          = "user"
	FieldClientIP      = "client_ip"
)

// RequestContext is the immutable identity of one in-flight request.
type RequestContext struct {
	correlationID string
	identity      string
	clientAddress string
}

// NewRequestContext returns a RequestContext. It is mainly useful in tests; requests get
// theirs from Manager.Begin.
func NewRequestContext(correlationID, identity, clientAddress string) RequestContext {
	return RequestContext{
		correlationID: correlationID,
		identity:      identity,
		clientAddress: clientAddress,
	}
}

func (rc RequestContext) CorrelationID() string { return rc.correlationID }
func (rc RequestContext) Identity() string      { return rc.identity }
func (rc RequestContext) ClientAddress() string { return rc.clientAddress }

// Fields returns the log fields of rc.
func (rc RequestContext) Fields() []logger.Field {
	return []logger.Field{
		logger.String(FieldCorrelationID, rc.correlationID),
		logger.String(FieldUser, rc.identity),
		logger.String(FieldClientIP, rc.clientAddress),
	}
}

type scopeKey struct{}

// ScopeFromContext returns the scope bound to ctx, if any, regardless of its state.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	return s, ok && s != nil
}

// FromContext returns the RequestContext bound to ctx. It reports false when nothing was
// bound or the scope has already been torn down.
func FromContext(ctx context.Context) (RequestContext, bool) {
	s, ok := ScopeFromContext(ctx)
	if !ok || s.State() != StateBound {
		return RequestContext{}, false
	}
	return s.rc, true
}

// Propagate writes the correlation headers of the request bound to ctx onto h. Headers
// already present are replaced. It reports false, leaving h untouched, when no request is
// bound.
func Propagate(ctx context.Context, h http.Header) bool {
	rc, ok := FromContext(ctx)
	if !ok {
		return false
	}
	setHeaders(h, rc)
	return true
}

// OutgoingPairs returns the correlation headers as key/value pairs for transports that
// take a flat list, such as gRPC metadata.
func OutgoingPairs(ctx context.Context) []string {
	rc, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	return []string{
		headers.HeaderXTraceID, rc.correlationID,
		headers.HeaderXUser, rc.identity,
	}
}

func setHeaders(h http.Header, rc RequestContext) {
	h.Set(headers.HeaderXTraceID, rc.correlationID)
	h.Set(headers.HeaderXUser, rc.identity)
}
