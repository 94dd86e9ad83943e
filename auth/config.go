package auth

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultHeaderName   = "Authorization"
	DefaultScheme       = "Bearer"
	DefaultKeySetPath   = "/protocol/openid-connect/certs"
	DefaultClockSkew    = 60 * time.Second
	DefaultKeySetTTL    = 15 * time.Minute
	DefaultFetchTimeout = 5 * time.Second
	DefaultRefreshFloor = 10 * time.Second
)

// DefaultAlgorithms are the signing algorithms a credential may use.
var DefaultAlgorithms = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodPS256.Alg(),
	jwt.SigningMethodPS384.Alg(),
	jwt.SigningMethodPS512.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodES384.Alg(),
	jwt.SigningMethodES512.Alg(),
}

// ConfigOption is a functional option for configuring credential validation
type ConfigOption func(*Config)

// WithTrustedIssuers adds issuers whose credentials are accepted.
func WithTrustedIssuers(issuers ...string) ConfigOption {
	return func(c *Config) {
		c.TrustedIssuers = append(c.TrustedIssuers, issuers...)
	}
}

// WithKeySetPath sets the path appended to an issuer URI to find its key set.
func WithKeySetPath(path string) ConfigOption {
	return func(c *Config) {
		c.KeySetPath = path
	}
}

// WithKeySetURL pins the key set location of one issuer. Use it when the issuer URI
// written into credentials is not reachable from inside the network.
func WithKeySetURL(issuer, url string) ConfigOption {
	return func(c *Config) {
		if c.KeySetURLs == nil {
			c.KeySetURLs = make(map[string]string)
		}
		c.KeySetURLs[issuer] = url
	}
}

// WithClockSkew sets the tolerance applied to exp and nbf.
func WithClockSkew(skew time.Duration) ConfigOption {
	return func(c *Config) {
		c.ClockSkew = skew
	}
}

// WithKeySetTTL sets how long a fetched key set is served from cache.
func WithKeySetTTL(ttl time.Duration) ConfigOption {
	return func(c *Config) {
		c.KeySetTTL = ttl
	}
}

// WithFetchTimeout bounds a single key set fetch.
func WithFetchTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.FetchTimeout = timeout
	}
}

// WithRefreshFloor sets the minimum age of a cached key set before a verification
// failure may trigger another fetch.
func WithRefreshFloor(floor time.Duration) ConfigOption {
	return func(c *Config) {
		c.RefreshFloor = floor
	}
}

// WithAlgorithms restricts the accepted signing algorithms.
func WithAlgorithms(algs ...string) ConfigOption {
	return func(c *Config) {
		c.Algorithms = algs
	}
}

// Config holds the credential validation settings
type Config struct {
	TrustedIssuers []string
	KeySetPath     string
	KeySetURLs     map[string]string
	ClockSkew      time.Duration
	KeySetTTL      time.Duration
	FetchTimeout   time.Duration
	RefreshFloor   time.Duration
	Algorithms     []string
}

// NewConfig returns a Config with defaults applied before opts.
func NewConfig(opts ...ConfigOption) *Config {
	c := &Config{
		KeySetPath:   DefaultKeySetPath,
		ClockSkew:    DefaultClockSkew,
		KeySetTTL:    DefaultKeySetTTL,
		FetchTimeout: DefaultFetchTimeout,
		RefreshFloor: DefaultRefreshFloor,
		Algorithms:   DefaultAlgorithms,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate reports configuration that would make every credential fail.
func (c *Config) Validate() error {
	if len(c.TrustedIssuers) == 0 {
		return errors.New("at least one trusted issuer is required")
	}
	for _, iss := range c.TrustedIssuers {
		if strings.TrimSpace(iss) == "" {
			return errors.New("trusted issuer must not be empty")
		}
	}
	if len(c.Algorithms) == 0 {
		return errors.New("at least one signing algorithm is required")
	}
	if c.ClockSkew < 0 {
		return errors.Newf("clock skew must not be negative, got %s", c.ClockSkew)
	}
	if c.KeySetTTL <= 0 {
		return errors.Newf("key set ttl must be positive, got %s", c.KeySetTTL)
	}
	if c.FetchTimeout <= 0 {
		return errors.Newf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

// KeySetURL returns where the key set of issuer is published.
func (c *Config) KeySetURL(issuer string) string {
	if url, ok := c.KeySetURLs[issuer]; ok {
		return url
	}
	return strings.TrimSuffix(issuer, "/") + c.KeySetPath
}
