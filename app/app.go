// Package app holds the startup steps shared by the storefront binaries.
package app

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/config"
	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/env"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/grpc/server"
	storefronthttp "github.com/enset/storefront/http"
	restyinterceptors "github.com/enset/storefront/http/interceptors/resty"
	"github.com/enset/storefront/observability"
)

// Base is the configuration every binary carries. Binaries embed it with
// `mapstructure:",squash"`.
type Base struct {
	Server   config.ServerConfig   `mapstructure:"server"`
	Identity config.IdentityConfig `mapstructure:"identity"`
	Tracing  config.TracingConfig  `mapstructure:"tracing"`
}

// Load reads the configuration of the named binary into conf and returns the process logger.
func Load(name string, conf any) (*logger.Logger, error) {
	log, err := logger.Instance()
	if err != nil {
		return nil, errors.Wrap(err, "initializing logger")
	}
	log = log.With(logger.String("service", name))
	if err := config.LoadConfig(conf, log, config.WithDynamicDir(name)); err != nil {
		return nil, err
	}
	if !env.IsLocalApplicationEnv() {
		gin.SetMode(gin.ReleaseMode)
	}
	return log, nil
}

// StartTracing starts the tracer per cfg. The returned function stops it.
func StartTracing(name string, cfg config.TracingConfig, log *logger.Logger) func() {
	return observability.InitObservability(name, env.GetApplicationEnvSafe().String(), log,
		observability.WithEnabled(cfg.Enabled),
		observability.WithAgentAddr(cfg.AgentAddr),
		observability.WithMetrics(!env.IsLocalApplicationEnv()),
	)
}

// NewIdentityManager builds the credential validator described by cfg and the manager
// binding request identity with it. Key sets are fetched with fetchClient.
func NewIdentityManager(cfg config.IdentityConfig, fetchClient *http.Client, log *logger.Logger) (*correlation.Manager, error) {
	authCfg, err := cfg.AuthConfig()
	if err != nil {
		return nil, err
	}
	if fetchClient == nil {
		fetchClient = &http.Client{}
	}
	// Key set fetches are not part of any request's identity.
	restyClient := storefronthttp.NewRestyWithClient(fetchClient, log,
		restyinterceptors.WithPropagationEnabled(false),
	)
	keys := auth.NewKeySetCache(authCfg, auth.NewKeySetFetcher(restyClient))
	validator, err := auth.NewValidator(authCfg, keys)
	if err != nil {
		return nil, err
	}

	log.Info("credential validation configured",
		logger.Strings("issuers", validator.Issuers().Issuers()),
		logger.Bool("trustInboundCorrelation", cfg.TrustInboundCorrelation),
	)
	return correlation.NewManager(validator,
		correlation.WithPolicy(cfg.RoutePolicy()),
		correlation.WithInboundCorrelation(cfg.TrustInboundCorrelation),
	), nil
}

// Serve runs the servers described by opts until ctx is cancelled.
func Serve(ctx context.Context, cfg config.ServerConfig, log *logger.Logger, opts ...server.Option) error {
	opts = append(opts, server.WithLogger(log))
	if cfg.ShutdownTimeout > 0 {
		opts = append(opts, server.WithShutdownTimeout(cfg.ShutdownTimeout))
	}
	srv, err := server.NewServer(opts...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
