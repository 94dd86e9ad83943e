// Command orders serves the order REST surface. Orders are priced from the products
// service, called with the identity of the inbound request.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/app"
	"github.com/enset/storefront/grpc/server"
	storefronthttp "github.com/enset/storefront/http"
	gininterceptors "github.com/enset/storefront/http/interceptors/gin"
	restyinterceptors "github.com/enset/storefront/http/interceptors/resty"
	"github.com/enset/storefront/services/orders"
)

const serviceName = "storefront-orders"

type ordersConfig struct {
	app.Base       `mapstructure:",squash"`
	ProductsURL    string        `mapstructure:"productsUrl"`
	ProductTimeout time.Duration `mapstructure:"productTimeout"`
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conf := ordersConfig{ProductTimeout: 5 * time.Second}
	l, err := app.Load("orders", &conf)
	if err != nil {
		return err
	}
	stopTracing := app.StartTracing(serviceName, conf.Tracing, l)
	defer stopTracing()

	identity, err := app.NewIdentityManager(conf.Identity, nil, l)
	if err != nil {
		return err
	}

	productsHTTP := &http.Client{Timeout: conf.ProductTimeout}
	catalog := orders.NewProductClient(
		storefronthttp.NewRestyWithClient(productsHTTP, l, restyinterceptors.WithTracingEnabled(conf.Tracing.Enabled)),
		conf.ProductsURL,
	)

	r := gin.New()
	r.Use(gininterceptors.DefaultInterceptors(
		gininterceptors.WithServiceIdentity(identity),
		gininterceptors.WithTracingEnabled(conf.Tracing.Enabled),
		gininterceptors.WithTimeout(conf.Server.RequestTimeout),
	)...)
	r.GET("/actuator/health", storefronthttp.HealthHandler())
	orders.NewHandler(orders.NewMemoryRepository(), catalog).Register(r)

	return app.Serve(ctx, conf.Server, l,
		server.WithHTTPServer("http", conf.Server.HTTPAddress, r),
	)
}
