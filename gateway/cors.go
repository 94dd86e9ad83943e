package gateway

import (
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/enset/storefront/common/headers"
)

// CORSOption is a functional option for configuring CORS
type CORSOption func(*CORSConfig)

// WithAllowedOrigins sets the allowed origins for CORS
func WithAllowedOrigins(origins []string) CORSOption {
	return func(c *CORSConfig) {
		c.AllowedOrigins = origins
	}
}

// WithAllowedMethods sets the allowed methods for CORS
func WithAllowedMethods(methods []string) CORSOption {
	return func(c *CORSConfig) {
		c.AllowedMethods = methods
	}
}

// WithAllowedHeaders sets the allowed headers for CORS
func WithAllowedHeaders(headers []string) CORSOption {
	return func(c *CORSConfig) {
		c.AllowedHeaders = headers
	}
}

// WithAllowCredentials sets whether credentials are allowed
func WithAllowCredentials(allow bool) CORSOption {
	return func(c *CORSConfig) {
		c.AllowCredentials = allow
	}
}

// CORS wraps the gateway handler so browser front-ends on other origins can call it.
type CORS struct {
	Enabled bool
	Config  CORSConfig
}

// CORSConfig holds the CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowedOrigins"`
	AllowedMethods   []string `mapstructure:"allowedMethods"`
	AllowedHeaders   []string `mapstructure:"allowedHeaders"`
	AllowCredentials bool     `mapstructure:"allowCredentials"`
}

// DefaultCORSConfig allows the front-end dev server and the headers the platform uses.
func DefaultCORSConfig(opts ...CORSOption) CORSConfig {
	cfg := CORSConfig{
		AllowedOrigins: []string{"http://localhost:4200"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
			http.MethodHead,
		},
		AllowedHeaders: []string{
			headers.HeaderAuthorization,
			"Content-Type",
			headers.HeaderXTraceID,
		},
		AllowCredentials: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Apply wraps handler with the CORS policy when enabled.
func (c *CORS) Apply(handler http.Handler) http.Handler {
	if !c.Enabled {
		return handler
	}
	options := []handlers.CORSOption{
		handlers.AllowedOrigins(c.Config.AllowedOrigins),
		handlers.AllowedMethods(c.Config.AllowedMethods),
		handlers.AllowedHeaders(c.Config.AllowedHeaders),
		handlers.ExposedHeaders([]string{headers.HeaderXTraceID}),
		handlers.OptionStatusCode(http.StatusNoContent),
	}

	if c.Config.AllowCredentials {
		options = append(options, handlers.AllowCredentials())
	}

	return handlers.CORS(options...)(handler)
}
