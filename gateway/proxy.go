package gateway

import (
	"context"
	"net/http"
	"net/http/httputil"

	ddhttp "github.com/DataDog/dd-trace-go/contrib/net/http/v2"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/headers"
	"github.com/enset/storefront/common/logger"
)

type proxyCfg struct {
	transport http.RoundTripper
}

// ProxyOption is a functional option for configuring the Proxy
type ProxyOption func(*proxyCfg)

// WithTransport replaces the upstream transport. The default is http.DefaultTransport
// wrapped for Datadog tracing.
func WithTransport(rt http.RoundTripper) ProxyOption {
	return func(cfg *proxyCfg) {
		cfg.transport = rt
	}
}

// Proxy forwards requests to the upstream owning their path.
type Proxy struct {
	routes  Routes
	proxies map[string]*httputil.ReverseProxy
}

// NewProxy builds one reverse proxy per route.
func NewProxy(routes Routes, opts ...ProxyOption) *Proxy {
	cfg := &proxyCfg{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.transport == nil {
		cfg.transport = ddhttp.WrapRoundTripper(http.DefaultTransport)
	}

	p := &Proxy{routes: routes, proxies: make(map[string]*httputil.ReverseProxy, len(routes))}
	for _, route := range routes {
		p.proxies[route.Prefix] = &httputil.ReverseProxy{
			Rewrite:        rewrite(route),
			ModifyResponse: dropUpstreamCorrelation,
			ErrorHandler:   upstreamError(route),
			Transport:      cfg.transport,
		}
	}
	return p
}

// Handler serves unmatched gin routes by proxying them.
func (p *Proxy) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		route, ok := p.routes.Match(c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		p.proxies[route.Prefix].ServeHTTP(c.Writer, c.Request)
	}
}

// rewrite replaces any client-supplied correlation headers with the ones bound at the
// edge. The inbound forwarding chain is kept and extended with the direct peer.
func rewrite(route Route) func(*httputil.ProxyRequest) {
	return func(pr *httputil.ProxyRequest) {
		pr.SetURL(route.Upstream)
		if prior, ok := pr.In.Header[headers.HeaderXForwardedFor]; ok {
			pr.Out.Header[headers.HeaderXForwardedFor] = prior
		}
		pr.SetXForwarded()

		for _, h := range headers.GetHeadersToForward() {
			pr.Out.Header.Del(h)
		}
		if !correlation.Propagate(pr.In.Context(), pr.Out.Header) {
			logger.FromContext(pr.In.Context()).Warn("proxying request without bound identity",
				logger.String("route", route.Name))
		}
	}
}

// dropUpstreamCorrelation keeps the edge's X-Trace-Id as the only one in the response.
func dropUpstreamCorrelation(resp *http.Response) error {
	resp.Header.Del(headers.HeaderXTraceID)
	return nil
}

func upstreamError(route Route) func(http.ResponseWriter, *http.Request, error) {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		log := logger.FromContext(r.Context()).With(
			logger.String("route", route.Name),
			logger.String("upstream", route.Upstream.String()),
		)
		if errors.Is(err, context.Canceled) {
			log.Debug("client went away before upstream answered")
			return
		}
		log.Error("upstream request failed", logger.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"bad_gateway"}`))
	}
}
