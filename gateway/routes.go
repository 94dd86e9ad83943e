// Package gateway is the public entry point: it binds request identity, then forwards the
// request to the service owning its path with the correlation headers rewritten.
package gateway

import (
	"net/url"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
)

// RouteConfig maps a path prefix to an upstream service.
type RouteConfig struct {
	Name     string `mapstructure:"name"`
	Prefix   string `mapstructure:"prefix"`
	Upstream string `mapstructure:"upstream"`
}

// Route is a validated RouteConfig.
type Route struct {
	Name     string
	Prefix   string
	Upstream *url.URL
}

// Matches reports whether path is the prefix itself or below it.
func (r Route) Matches(path string) bool {
	return path == r.Prefix || strings.HasPrefix(path, r.Prefix+"/")
}

// Routes is a set of routes matched longest prefix first.
type Routes []Route

// NewRoutes validates cfgs.
func NewRoutes(cfgs []RouteConfig) (Routes, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("at least one route is required")
	}
	routes := make(Routes, 0, len(cfgs))
	seen := make(map[string]struct{}, len(cfgs))
	for _, cfg := range cfgs {
		prefix := "/" + strings.Trim(cfg.Prefix, "/")
		if prefix == "/" {
			return nil, errors.Newf("route %q: prefix must not be empty", cfg.Name)
		}
		if _, dup := seen[prefix]; dup {
			return nil, errors.Newf("route %q: prefix %s is already routed", cfg.Name, prefix)
		}
		seen[prefix] = struct{}{}

		upstream, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, errors.Wrapf(err, "route %q: invalid upstream", cfg.Name)
		}
		if upstream.Scheme == "" || upstream.Host == "" {
			return nil, errors.Newf("route %q: upstream %q must be an absolute URL", cfg.Name, cfg.Upstream)
		}
		routes = append(routes, Route{Name: cfg.Name, Prefix: prefix, Upstream: upstream})
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return len(routes[i].Prefix) > len(routes[j].Prefix)
	})
	return routes, nil
}

// Match returns the route owning path.
func (rs Routes) Match(path string) (Route, bool) {
	for _, r := range rs {
		if r.Matches(path) {
			return r, true
		}
	}
	return Route{}, false
}
