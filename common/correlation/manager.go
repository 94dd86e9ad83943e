package correlation

import (
	"context"
	"net/http"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/clientaddr"
	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/common/metadata"
)

// Request is what a boundary adapter knows about an inbound request.
type Request struct {
	Method      string
	Path        string
	Header      metadata.Metadata
	PeerAddress string
}

// RequestFromHTTP describes r.
func RequestFromHTTP(r *http.Request) Request {
	return Request{
		Method:      r.Method,
		Path:        r.URL.Path,
		Header:      metadata.FromHTTPHeader(r.Header),
		PeerAddress: r.RemoteAddr,
	}
}

// CredentialValidator verifies a bearer credential.
type CredentialValidator interface {
	Validate(ctx context.Context, credential string) (auth.Claims, error)
}

// PolicyResolver says what a route requires of the caller's credential.
type PolicyResolver interface {
	For(method, path string) auth.Policy
}

// ManagerOption is a functional option for configuring a Manager
type ManagerOption func(*Manager)

// WithPolicy sets the per-route credential policy. Without it every route is Required.
func WithPolicy(p PolicyResolver) ManagerOption {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithInboundCorrelation adopts a well-formed inbound X-Trace-Id instead of minting a
// new id. Services behind the edge enable it; the edge never does.
func WithInboundCorrelation(trust bool) ManagerOption {
	return func(m *Manager) {
		m.adoptInbound = trust
	}
}

// WithIDGenerator replaces the correlation id source.
func WithIDGenerator(gen func() string) ManagerOption {
	return func(m *Manager) {
		m.newID = gen
	}
}

// WithObserver registers o for bind and teardown notifications.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observers = append(m.observers, o)
	}
}

// Manager begins request scopes at one trust boundary.
type Manager struct {
	validator    CredentialValidator
	policy       PolicyResolver
	newID        func() string
	adoptInbound bool
	observers    []Observer
}

// NewManager returns a Manager validating credentials with validator.
func NewManager(validator CredentialValidator, opts ...ManagerOption) *Manager {
	m := &Manager{
		validator: validator,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin binds a RequestContext for req and returns its scope. The scope is always bound,
// even when err is non-nil, and the caller must End it. A non-nil err means the request
// must be rejected; it is a *auth.TrustError unless the caller's context ended first.
func (m *Manager) Begin(ctx context.Context, req Request) (*Scope, error) {
	if req.Header == nil {
		req.Header = metadata.Metadata{}
	}

	principal, rejected, degraded := m.authenticate(ctx, req)
	rc := RequestContext{
		correlationID: m.correlationID(req.Header),
		identity:      auth.ResolveIdentity(principal),
		clientAddress: clientaddr.Resolve(req.Header, req.PeerAddress),
	}

	scope := m.bind(ctx, rc)
	if degraded != nil {
		logger.FromContext(scope.ctx).Warn("credential not accepted, continuing as anonymous",
			logger.String("path", req.Path),
			logger.Error(degraded))
	}
	return scope, rejected
}

func (m *Manager) correlationID(md metadata.Metadata) string {
	if m.adoptInbound {
		if id, err := uuid.Parse(md.First(headers.HeaderXTraceID)); err == nil {
			return id.String()
		}
	}
	return m.newID()
}

// authenticate returns the caller's principal. rejected is set when the route requires
// a credential that was not accepted; degraded when an optional one was not.
func (m *Manager) authenticate(ctx context.Context, req Request) (principal auth.Principal, rejected, degraded error) {
	policy := auth.PolicyRequired
	if m.policy != nil {
		policy = m.policy.For(req.Method, req.Path)
	}
	if policy == auth.PolicyExempt {
		return auth.Anonymous{}, nil, nil
	}

	token, err := auth.ExtractBearer(req.Header.First(headers.HeaderAuthorization))
	if err == nil {
		if m.validator == nil {
			err = auth.NewTrustError(auth.KindKeySetUnavailable, "", errors.New("no credential validator configured"))
		} else {
			var claims auth.Claims
			if claims, err = m.validator.Validate(ctx, token); err == nil {
				return auth.Authenticated{Claims: claims}, nil, nil
			}
		}
	}

	switch {
	case policy == auth.PolicyRequired:
		return auth.Anonymous{}, err, nil
	case errors.Is(err, auth.ErrMissingCredential):
		return auth.Anonymous{}, nil, nil
	default:
		return auth.Anonymous{}, nil, err
	}
}

func (m *Manager) bind(parent context.Context, rc RequestContext) *Scope {
	ctx, cancel := context.WithCancel(parent)
	s := &Scope{
		rc:        rc,
		cancel:    cancel,
		observers: m.observers,
	}
	ctx = context.WithValue(ctx, scopeKey{}, s)
	ctx = logger.ContextWithFields(ctx, rc.Fields()...)
	if span, ok := tracer.SpanFromContext(ctx); ok {
		span.SetTag(FieldCorrelationID, rc.correlationID)
		span.SetTag(FieldUser, rc.identity)
		span.SetBaggageItem(FieldCorrelationID, rc.correlationID)
	}
	s.ctx = ctx
	s.state.Store(int32(StateBound))

	for _, o := range s.observers {
		o.Bound(rc)
	}
	return s
}
