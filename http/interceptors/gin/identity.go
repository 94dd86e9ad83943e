package gin

import (
	"fmt"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
)

// EdgeMiddleware binds the request identity at the public entry point. Teardown is tied
// to the request's completion: it runs when the chain returns, fails or panics, and as
// soon as the client goes away even if a handler is still blocked.
func EdgeMiddleware(m *correlation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		scope, err := m.Begin(ctx, correlation.RequestFromHTTP(c.Request))
		scope.EndOnDone(ctx)
		defer scope.End()

		serveScoped(c, scope, err)
	}
}

// ServiceBoundaryMiddleware binds the request identity inside a service and tears it down
// when the handler chain returns, by any path.
func ServiceBoundaryMiddleware(m *correlation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		scope, err := m.Begin(c.Request.Context(), correlation.RequestFromHTTP(c.Request))
		defer scope.End()

		serveScoped(c, scope, err)
	}
}

func serveScoped(c *gin.Context, scope *correlation.Scope, err error) {
	c.Request = c.Request.WithContext(scope.Context())
	c.Header(headers.HeaderXTraceID, scope.RequestContext().CorrelationID())

	logger.FromContext(scope.Context()).Info("request observed",
		logger.String("method", c.Request.Method),
		logger.String("path", c.Request.URL.Path),
	)

	if err != nil {
		abortWithTrustFailure(c, err)
		return
	}
	c.Next()
}

// abortWithTrustFailure answers 401 for credential faults and 503 when the issuer's keys
// could not be fetched, with an RFC 6750 error body.
func abortWithTrustFailure(c *gin.Context, err error) {
	log := logger.FromContext(c.Request.Context())

	var terr *auth.TrustError
	if !errors.As(err, &terr) {
		log.Warn("request abandoned before identity was established", logger.Error(err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": auth.KindKeySetUnavailable.OAuthCode(),
		})
		return
	}

	log.Warn("request rejected",
		logger.String("reason", terr.Kind.String()),
		logger.Error(err),
	)
	code := terr.Kind.OAuthCode()
	status := terr.Kind.StatusCode()
	if status == http.StatusUnauthorized {
		c.Header(headers.HeaderWWWAuthenticate, challenge(terr.Kind))
	}

	body := gin.H{"error": code}
	if terr.Kind != auth.KindMissingCredential {
		body["error_description"] = terr.Kind.String()
	}
	c.AbortWithStatusJSON(status, body)
}

func challenge(kind auth.Kind) string {
	if kind == auth.KindMissingCredential {
		return auth.DefaultScheme
	}
	return fmt.Sprintf(`%s error=%q, error_description=%q`, auth.DefaultScheme, kind.OAuthCode(), kind.String())
}
