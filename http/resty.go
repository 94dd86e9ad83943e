package http

import (
	"net/http"

	"github.com/go-resty/resty/v2"

	"github.com/enset/storefront/common/logger"
	interceptors "github.com/enset/storefront/http/interceptors/resty"
)

// NewRestyWithClient returns a resty client over client that propagates traces and the
// correlation headers, and logs through log.
func NewRestyWithClient(client *http.Client, log *logger.Logger, opt ...interceptors.InterceptorOpt) *resty.Client {
	restyClient := resty.NewWithClient(client)
	interceptors.InjectInterceptors(restyClient, opt...)

	if log != nil {
		restyClient.SetLogger(logger.NewAdapter(log))
	}
	return restyClient
}
