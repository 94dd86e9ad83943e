package orders_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/correlation"
	"github.com/enset/storefront/common/logger"
	storefronthttp "github.com/enset/storefront/http"
	interceptors "github.com/enset/storefront/http/interceptors/gin"
	restyinterceptors "github.com/enset/storefront/http/interceptors/resty"
	"github.com/enset/storefront/services/orders"
	"github.com/enset/storefront/services/products"
)

type tokens map[string]string

func (v tokens) Validate(_ context.Context, token string) (auth.Claims, error) {
	if name, ok := v[token]; ok {
		return auth.Claims{PreferredUsername: name}, nil
	}
	return auth.Claims{}, auth.NewTrustError(auth.KindBadSignature, "", nil)
}

var validator = tokens{"alice-token": "alice"}

func serviceBoundary(r *gin.Engine) {
	m := correlation.NewManager(validator,
		correlation.WithPolicy(auth.NewRoutePolicy(nil, nil)),
		correlation.WithInboundCorrelation(true))
	r.Use(interceptors.DefaultInterceptors(interceptors.WithServiceIdentity(m), interceptors.WithTracingEnabled(false))...)
}

// productsHop records the headers of every lookup the orders service makes.
type productsHop struct {
	mu      sync.Mutex
	headers []http.Header
}

func (p *productsHop) seen() []http.Header {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]http.Header{}, p.headers...)
}

func newProductsServer(t *testing.T, hop *productsHop) *httptest.Server {
	t.Helper()
	repo := products.NewMemoryRepository()
	require.NoError(t, products.Seed(context.Background(), repo, time.Now()))

	r := gin.New()
	r.Use(func(c *gin.Context) {
		hop.mu.Lock()
		hop.headers = append(hop.headers, c.Request.Header.Clone())
		hop.mu.Unlock()
	})
	serviceBoundary(r)
	products.NewHandler(repo).Register(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newOrdersServer(t *testing.T, productsURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	client := storefronthttp.NewRestyWithClient(&http.Client{Timeout: 5 * time.Second},
		logger.NewLogger(zaptest.NewLogger(t)),
		restyinterceptors.WithTracingEnabled(false))

	r := gin.New()
	serviceBoundary(r)
	orders.NewHandler(orders.NewMemoryRepository(), orders.NewProductClient(client, productsURL)).Register(r)
	return r
}

func call(t *testing.T, r http.Handler, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer alice-token")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func newOrder(items ...orders.Item) orders.Order {
	return orders.Order{CustomerName: "Alice Martin", CustomerEmail: "alice@example.com", Items: items}
}

func TestCreateOrderPricesItemsFromCatalog(t *testing.T) {
	hop := &productsHop{}
	r := newOrdersServer(t, newProductsServer(t, hop).URL)

	traceID := uuid.NewString()
	w := call(t, r, http.MethodPost, "/orders",
		newOrder(orders.Item{ProductID: 2, Quantity: 2, UnitPrice: 0.01}, orders.Item{ProductID: 3, Quantity: 1}),
		http.Header{"X-Trace-Id": {traceID}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	o := decode[orders.Order](t, w)
	assert.Equal(t, orders.StatusPending, o.Status)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "Mechanical keyboard", o.Items[0].ProductName)
	assert.InDelta(t, 179.80, o.Items[0].TotalPrice, 0.001)
	assert.InDelta(t, 328.80, o.TotalAmount, 0.001)
	assert.Equal(t, traceID, w.Header().Get("X-Trace-Id"))

	lookups := hop.seen()
	require.Len(t, lookups, 2)
	for _, h := range lookups {
		assert.Equal(t, traceID, h.Get("X-Trace-Id"))
		assert.Equal(t, "alice", h.Get("X-User"))
		assert.Equal(t, "Bearer alice-token", h.Get("Authorization"))
	}
}

func TestCreateOrderProductFailures(t *testing.T) {
	hop := &productsHop{}
	productsURL := newProductsServer(t, hop).URL

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	tests := []struct {
		name        string
		productsURL string
		item        orders.Item
		wantStatus  int
	}{
		{name: "unknown product", productsURL: productsURL, item: orders.Item{ProductID: 99, Quantity: 1}, wantStatus: http.StatusUnprocessableEntity},
		{name: "products unreachable", productsURL: downURL, item: orders.Item{ProductID: 1, Quantity: 1}, wantStatus: http.StatusBadGateway},
		{name: "invalid item", productsURL: productsURL, item: orders.Item{ProductID: 1}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newOrdersServer(t, tt.productsURL)
			w := call(t, r, http.MethodPost, "/orders", newOrder(tt.item), nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, http.StatusOK, call(t, r, http.MethodGet, "/orders/stats", nil, nil).Code)
			assert.Equal(t, 0, decode[orders.Stats](t, call(t, r, http.MethodGet, "/orders/stats", nil, nil)).Count)
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	r := newOrdersServer(t, newProductsServer(t, &productsHop{}).URL)

	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/orders", newOrder(orders.Item{ProductID: 1, Quantity: 1}), nil).Code)
	bob := orders.Order{CustomerName: "Bob Stone", CustomerEmail: "bob@example.com", Items: []orders.Item{{ProductID: 2, Quantity: 1}}}
	require.Equal(t, http.StatusCreated, call(t, r, http.MethodPost, "/orders", bob, nil).Code)

	w := call(t, r, http.MethodPatch, "/orders/2/status?status=shipped", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, orders.StatusShipped, decode[orders.Order](t, w).Status)

	w = call(t, r, http.MethodPut, "/orders/1", map[string]string{
		"customerName": "Alice M.", "customerEmail": "alice@example.com", "status": "CANCELLED",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice M.", decode[orders.Order](t, w).CustomerName)

	tests := []struct {
		path    string
		wantIDs []int64
	}{
		{path: "/orders", wantIDs: []int64{1, 2}},
		{path: "/orders/customer/BOB@example.com", wantIDs: []int64{2}},
		{path: "/orders/status/SHIPPED", wantIDs: []int64{2}},
		{path: "/orders/search?name=alice", wantIDs: []int64{1}},
		{path: "/orders/amount-range?minAmount=0&maxAmount=100", wantIDs: []int64{2}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := call(t, r, http.MethodGet, tt.path, nil, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var ids []int64
			for _, o := range decode[[]orders.Order](t, w) {
				ids = append(ids, o.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}

	stats := decode[orders.Stats](t, call(t, r, http.MethodGet, "/orders/stats", nil, nil))
	assert.Equal(t, 2, stats.Count)
	assert.Equal(t, 1, stats.ByStatus[orders.StatusCancelled])
	assert.InDelta(t, 89.90, stats.Revenue, 0.001)

	assert.Equal(t, http.StatusBadRequest, call(t, r, http.MethodGet, "/orders/status/LOST", nil, nil).Code)
	assert.Equal(t, http.StatusNoContent, call(t, r, http.MethodDelete, "/orders/1", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, r, http.MethodDelete, "/orders/1", nil, nil).Code)
}

func TestOrdersRequireCredential(t *testing.T) {
	r := newOrdersServer(t, "http://127.0.0.1:0")

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(t, r, http.MethodGet, "/orders/admin", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Order management (ADMIN) : alice", w.Body.String())
}
