// Command products serves the product catalog over REST, and the gRPC health service
// behind the same identity boundary.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"

	"github.com/enset/storefront/app"
	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/grpc/interceptors"
	"github.com/enset/storefront/grpc/server"
	storefronthttp "github.com/enset/storefront/http"
	gininterceptors "github.com/enset/storefront/http/interceptors/gin"
	"github.com/enset/storefront/services/products"
)

const (
	serviceName = "storefront-products"
	// healthService is the gRPC health service name the gateway probes.
	healthService = "storefront.products"
)

type productsConfig struct {
	app.Base `mapstructure:",squash"`
	Seed     bool `mapstructure:"seed"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var conf productsConfig
	l, err := app.Load("products", &conf)
	if err != nil {
		return err
	}
	stopTracing := app.StartTracing(serviceName, conf.Tracing, l)
	defer stopTracing()

	identity, err := app.NewIdentityManager(conf.Identity, nil, l)
	if err != nil {
		return err
	}

	repo := products.NewMemoryRepository()
	if conf.Seed {
		if err := products.Seed(ctx, repo, time.Now()); err != nil {
			return err
		}
		n, _ := repo.Count(ctx)
		l.Info("catalog seeded", logger.Int("products", n))
	}

	r := gin.New()
	r.Use(gininterceptors.DefaultInterceptors(
		gininterceptors.WithServiceIdentity(identity),
		gininterceptors.WithTracingEnabled(conf.Tracing.Enabled),
		gininterceptors.WithTimeout(conf.Server.RequestTimeout),
	)...)
	r.GET("/actuator/health", storefronthttp.HealthHandler())
	products.NewHandler(repo).Register(r)

	chainOpts := []interceptors.ConfigOption{
		interceptors.WithIdentity(identity),
		interceptors.WithTracingEnabled(conf.Tracing.Enabled),
	}
	if conf.Server.RequestTimeout > 0 {
		chainOpts = append(chainOpts, interceptors.WithRequestTimeout(conf.Server.RequestTimeout))
	}
	grpcServer := server.NewServerWithCustomInterceptorChain(
		interceptors.NewDefaultServerUnaryChain(serviceName, chainOpts...),
		interceptors.NewDefaultServerStreamChain(serviceName, chainOpts...),
	)

	healthServer := server.RegisterHealth(grpcServer, healthService)
	go func() {
		<-ctx.Done()
		// Report NOT_SERVING while in-flight calls drain.
		healthServer.Shutdown()
	}()

	return app.Serve(ctx, conf.Server, l,
		server.WithHTTPServer("http", conf.Server.HTTPAddress, r),
		server.WithGRPCServer("grpc", conf.Server.GRPCAddress, grpcServer, func(s *grpc.Server) {
			for name := range s.GetServiceInfo() {
				l.Info("grpc service registered", logger.String("service", name))
			}
		}),
	)
}
