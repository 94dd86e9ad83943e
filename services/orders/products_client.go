package orders

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnknownProduct is returned when the products service has no such product.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrProductsUnavailable is returned when the products service cannot answer.
	ErrProductsUnavailable = errors.New("products service unavailable")
)

// Product is the part of a products service entry an order needs.
type Product struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// ProductCatalog looks products up.
type ProductCatalog interface {
	Product(ctx context.Context, authorization string, id int64) (Product, error)
}

// ProductClient reads products over HTTP. The client is expected to carry the correlation
// interceptors so the lookup inherits the caller's X-Trace-Id, X-User and cancellation.
type ProductClient struct {
	client  *resty.Client
	baseURL string
}

var _ ProductCatalog = (*ProductClient)(nil)

// NewProductClient returns a ProductClient for the products service at baseURL.
func NewProductClient(client *resty.Client, baseURL string) *ProductClient {
	return &ProductClient{client: client, baseURL: baseURL}
}

// Product fetches product id, forwarding the caller's authorization header.
func (c *ProductClient) Product(ctx context.Context, authorization string, id int64) (Product, error) {
	var p Product
	req := c.client.R().
		SetContext(ctx).
		SetResult(&p).
		SetPathParam("id", strconv.FormatInt(id, 10))
	if authorization != "" {
		req.SetHeader("Authorization", authorization)
	}

	resp, err := req.Get(c.baseURL + "/products/{id}")
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Product{}, errors.Wrap(ctxErr, "fetching product")
		}
		return Product{}, errors.Mark(errors.Wrapf(err, "fetching product %d", id), ErrProductsUnavailable)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Product{}, errors.Wrapf(ErrUnknownProduct, "product %d", id)
	case resp.IsError():
		return Product{}, errors.Wrapf(ErrProductsUnavailable, "products service answered %d for product %d", resp.StatusCode(), id)
	}
	return p, nil
}
