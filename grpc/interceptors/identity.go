package interceptors

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmetadata "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/common/metadata"
)

// UnaryIdentityServerInterceptor binds the caller's identity for the duration of a unary
// call. Rejected credentials answer Unauthenticated, unreachable key sets Unavailable.
func UnaryIdentityServerInterceptor(m *correlation.Manager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		scope, err := m.Begin(ctx, requestFromIncoming(ctx, info.FullMethod))
		defer scope.End()

		if err != nil {
			return nil, trustStatus(scope.Context(), err)
		}
		_ = grpc.SetHeader(scope.Context(), grpcmetadata.Pairs(
			headers.HeaderXTraceID, scope.RequestContext().CorrelationID(),
		))
		return handler(scope.Context(), req)
	}
}

// StreamIdentityServerInterceptor is UnaryIdentityServerInterceptor for streaming calls.
func StreamIdentityServerInterceptor(m *correlation.Manager) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		scope, err := m.Begin(ss.Context(), requestFromIncoming(ss.Context(), info.FullMethod))
		defer scope.End()

		if err != nil {
			return trustStatus(scope.Context(), err)
		}
		return handler(srv, &scopedStream{ServerStream: ss, ctx: scope.Context()})
	}
}

// UnaryIdentityClientInterceptor forwards the correlation headers of the request bound
// to ctx, if any, as outgoing metadata. Each forwarded key replaces any value the caller set.
func UnaryIdentityClientInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if pairs := correlation.OutgoingPairs(ctx); len(pairs) > 0 {
		md, _ := grpcmetadata.FromOutgoingContext(ctx)
		md = md.Copy()
		for i := 0; i+1 < len(pairs); i += 2 {
			md.Set(pairs[i], pairs[i+1])
		}
		ctx = grpcmetadata.NewOutgoingContext(ctx, md)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context { return s.ctx }

func requestFromIncoming(ctx context.Context, fullMethod string) correlation.Request {
	req := correlation.Request{Method: http.MethodPost, Path: fullMethod, Header: metadata.Metadata{}}
	if md, ok := grpcmetadata.FromIncomingContext(ctx); ok {
		req.Header = metadata.FromMap(md)
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		req.PeerAddress = p.Addr.String()
	}
	return req
}

func trustStatus(ctx context.Context, err error) error {
	log := logger.FromContext(ctx)

	var terr *auth.TrustError
	if !errors.As(err, &terr) {
		log.Warn("call abandoned before identity was established", logger.Error(err))
		return status.FromContextError(err).Err()
	}
	log.Warn("call rejected", logger.String("reason", terr.Kind.String()), logger.Error(err))

	if terr.Kind == auth.KindKeySetUnavailable {
		return status.Error(codes.Unavailable, terr.Kind.OAuthCode())
	}
	return status.Error(codes.Unauthenticated, terr.Kind.String())
}
