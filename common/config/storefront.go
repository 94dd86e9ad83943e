package config

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/enset/storefront/auth"
)

// ServerConfig holds the listen addresses of a binary.
type ServerConfig struct {
	HTTPAddress     string        `mapstructure:"httpAddress"`
	GRPCAddress     string        `mapstructure:"grpcAddress"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	RequestTimeout  time.Duration `mapstructure:"requestTimeout"`
}

// TracingConfig holds the DataDog settings.
type TracingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	AgentAddr string `mapstructure:"agentAddr"`
}

// KeySetOverride pins the key set location of one issuer.
type KeySetOverride struct {
	Issuer string `mapstructure:"issuer"`
	URL    string `mapstructure:"url"`
}

// IdentityConfig holds the credential validation settings. Durations left at zero take
// the auth package defaults.
type IdentityConfig struct {
	TrustedIssuers  []string         `mapstructure:"trustedIssuers"`
	KeySetPath      string           `mapstructure:"keySetPath"`
	KeySetOverrides []KeySetOverride `mapstructure:"keySetOverrides"`
	ClockSkew       time.Duration    `mapstructure:"clockSkew"`
	KeySetTTL       time.Duration    `mapstructure:"keySetTTL"`
	FetchTimeout    time.Duration    `mapstructure:"fetchTimeout"`
	RefreshFloor    time.Duration    `mapstructure:"refreshFloor"`
	Algorithms      []string         `mapstructure:"algorithms"`
	PublicPaths     []string         `mapstructure:"publicPaths"`
	OptionalPaths   []string         `mapstructure:"optionalPaths"`
	// TrustInboundCorrelation adopts an X-Trace-Id set by the caller. Only services
	// behind the edge enable it.
	TrustInboundCorrelation bool `mapstructure:"trustInboundCorrelation"`
}

// AuthConfig converts c into a validated auth.Config.
func (c IdentityConfig) AuthConfig() (*auth.Config, error) {
	opts := []auth.ConfigOption{auth.WithTrustedIssuers(c.TrustedIssuers...)}
	if c.KeySetPath != "" {
		opts = append(opts, auth.WithKeySetPath(c.KeySetPath))
	}
	for _, o := range c.KeySetOverrides {
		if o.Issuer == "" || o.URL == "" {
			return nil, errors.Newf("key set override needs both issuer and url, got %+v", o)
		}
		opts = append(opts, auth.WithKeySetURL(o.Issuer, o.URL))
	}
	if c.ClockSkew > 0 {
		opts = append(opts, auth.WithClockSkew(c.ClockSkew))
	}
	if c.KeySetTTL > 0 {
		opts = append(opts, auth.WithKeySetTTL(c.KeySetTTL))
	}
	if c.FetchTimeout > 0 {
		opts = append(opts, auth.WithFetchTimeout(c.FetchTimeout))
	}
	if c.RefreshFloor > 0 {
		opts = append(opts, auth.WithRefreshFloor(c.RefreshFloor))
	}
	if len(c.Algorithms) > 0 {
		opts = append(opts, auth.WithAlgorithms(c.Algorithms...))
	}

	cfg := auth.NewConfig(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "identity configuration")
	}
	return cfg, nil
}

// RoutePolicy returns the policy of the configured public and optional paths.
func (c IdentityConfig) RoutePolicy() *auth.RoutePolicy {
	return auth.NewRoutePolicy(c.PublicPaths, c.OptionalPaths)
}
