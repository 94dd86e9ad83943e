package server

import (
	"net/http"
	"time"
)

// Timeouts applied when no option overrides them.
var (
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultHookTimeout       = 5 * time.Second
	DefaultHTTPReadTimeout   = 5 * time.Second
	DefaultHTTPWriteTimeout  = 10 * time.Second
	DefaultHTTPIdleTimeout   = 120 * time.Second
	DefaultHTTPHeaderTimeout = 2 * time.Second
)

// HTTPConfig describes one HTTP listener. Name and Address must be unique per Server,
// except for ":0" style addresses.
type HTTPConfig struct {
	Name          string
	Address       string
	Handler       http.Handler
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	HeaderTimeout time.Duration
}

func newHTTPConfig(name, address string, handler http.Handler, opts ...HTTPConfigOption) HTTPConfig {
	cfg := HTTPConfig{
		Name:          name,
		Address:       address,
		Handler:       handler,
		ReadTimeout:   DefaultHTTPReadTimeout,
		WriteTimeout:  DefaultHTTPWriteTimeout,
		IdleTimeout:   DefaultHTTPIdleTimeout,
		HeaderTimeout: DefaultHTTPHeaderTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c HTTPConfig) server() *http.Server {
	return &http.Server{
		Handler:           c.Handler,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       c.IdleTimeout,
		ReadHeaderTimeout: c.HeaderTimeout,
	}
}

// GRPCConfig describes one gRPC listener.
type GRPCConfig struct {
	Name    string
	Address string
}

// HTTPConfigOption overrides one HTTPConfig setting.
type HTTPConfigOption func(*HTTPConfig)

// WithHTTPReadTimeout bounds reading a whole request, body included.
func WithHTTPReadTimeout(timeout time.Duration) HTTPConfigOption {
	return func(c *HTTPConfig) { c.ReadTimeout = timeout }
}

// WithHTTPWriteTimeout bounds writing the response. A reverse proxy needs it above the
// time its upstreams may take.
func WithHTTPWriteTimeout(timeout time.Duration) HTTPConfigOption {
	return func(c *HTTPConfig) { c.WriteTimeout = timeout }
}

// WithHTTPIdleTimeout bounds how long a keep-alive connection waits for the next request.
func WithHTTPIdleTimeout(timeout time.Duration) HTTPConfigOption {
	return func(c *HTTPConfig) { c.IdleTimeout = timeout }
}

// WithHTTPHeaderTimeout bounds reading the request headers.
func WithHTTPHeaderTimeout(timeout time.Duration) HTTPConfigOption {
	return func(c *HTTPConfig) { c.HeaderTimeout = timeout }
}
