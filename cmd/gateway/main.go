// Command gateway is the public entry point of the storefront. It binds the identity of
// every request and forwards it to the service owning its path.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/enset/storefront/app"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/gateway"
	"github.com/enset/storefront/grpc/health"
	"github.com/enset/storefront/grpc/server"
	storefronthttp "github.com/enset/storefront/http"
	gininterceptors "github.com/enset/storefront/http/interceptors/gin"
)

const serviceName = "storefront-gateway"

type corsConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	gateway.CORSConfig `mapstructure:",squash"`
}

// healthTarget is an upstream gRPC health endpoint reported by /actuator/health.
type healthTarget struct {
	Name    string `mapstructure:"name"`
	Target  string `mapstructure:"target"`
	Service string `mapstructure:"service"`
}

type gatewayConfig struct {
	app.Base      `mapstructure:",squash"`
	Routes        []gateway.RouteConfig `mapstructure:"routes"`
	CORS          corsConfig            `mapstructure:"cors"`
	HealthTargets []healthTarget        `mapstructure:"healthTargets"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf := gatewayConfig{CORS: corsConfig{CORSConfig: gateway.DefaultCORSConfig()}}
	l, err := app.Load("gateway", &conf)
	if err != nil {
		return err
	}
	stopTracing := app.StartTracing(serviceName, conf.Tracing, l)
	defer stopTracing()

	identity, err := app.NewIdentityManager(conf.Identity, nil, l)
	if err != nil {
		return err
	}
	routes, err := gateway.NewRoutes(conf.Routes)
	if err != nil {
		return errors.Wrap(err, "gateway routes")
	}

	probes, closeProbes, err := healthProbes(conf.HealthTargets)
	if err != nil {
		return err
	}

	r := gin.New()
	r.Use(gininterceptors.DefaultInterceptors(
		gininterceptors.WithEdgeIdentity(identity),
		gininterceptors.WithTracingEnabled(conf.Tracing.Enabled),
		gininterceptors.WithTimeout(conf.Server.RequestTimeout),
	)...)
	r.GET("/actuator/health", storefronthttp.HealthHandler(probes...))
	r.NoRoute(gateway.NewProxy(routes).Handler())

	cors := gateway.CORS{Enabled: conf.CORS.Enabled, Config: conf.CORS.CORSConfig}
	for _, route := range routes {
		l.Info("route", logger.String("name", route.Name), logger.String("prefix", route.Prefix),
			logger.String("upstream", route.Upstream.String()))
	}

	return app.Serve(ctx, conf.Server, l,
		server.WithHTTPServer("http", conf.Server.HTTPAddress, cors.Apply(r),
			// Upstream calls may take the whole request timeout.
			server.WithHTTPWriteTimeout(conf.Server.RequestTimeout+5*time.Second),
		),
		server.WithShutdownHook(server.ShutdownHook{Name: "health probes", Hook: closeProbes}),
	)
}

// healthProbes opens a health checker per target. The returned function closes them.
func healthProbes(targets []healthTarget) ([]storefronthttp.Probe, func(context.Context) error, error) {
	probes := make([]storefronthttp.Probe, 0, len(targets))
	checkers := make([]*health.Checker, 0, len(targets))
	closeAll := func(context.Context) error {
		var err error
		for _, c := range checkers {
			err = errors.CombineErrors(err, c.Close())
		}
		return err
	}

	for _, t := range targets {
		checker, err := health.NewChecker(serviceName, health.WithTarget(t.Target), health.WithService(t.Service))
		if err != nil {
			_ = closeAll(context.Background())
			return nil, nil, err
		}
		checkers = append(checkers, checker)
		probes = append(probes, storefronthttp.Probe{
			Name: t.Name,
			Check: func(ctx context.Context) error {
				st, err := checker.Status(ctx)
				if err != nil {
					return err
				}
				if st != grpc_health_v1.HealthCheckResponse_SERVING {
					return errors.Newf("%s is %s", checker.Target(), st)
				}
				return nil
			},
		})
	}
	return probes, closeAll, nil
}
