package products_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/correlation"
	interceptors "github.com/enset/storefront/http/interceptors/gin"
	"github.com/enset/storefront/services/products"
)

type oneUser struct{}

func (oneUser) Validate(_ context.Context, token string) (auth.Claims, error) {
	if token == "admin-token" {
		return auth.Claims{PreferredUsername: "admin"}, nil
	}
	return auth.Claims{}, auth.NewTrustError(auth.KindBadSignature, "", nil)
}

func newServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := products.NewMemoryRepository()
	require.NoError(t, products.Seed(context.Background(), repo, time.Now()))

	m := correlation.NewManager(oneUser{}, correlation.WithPolicy(auth.NewRoutePolicy(nil, nil)))
	r := gin.New()
	r.Use(interceptors.DefaultInterceptors(interceptors.WithServiceIdentity(m), interceptors.WithTracingEnabled(false))...)
	products.NewHandler(repo).Register(r)
	return r
}

func call(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer admin-token")
	req.Header.Set("Content-Type", "application/json")
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

func TestProductCRUD(t *testing.T) {
	r := newServer(t)

	w := call(t, r, http.MethodPost, "/products", products.Product{Name: "Monitor", Price: 249.5, Quantity: 3})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[products.Product](t, w)
	assert.Equal(t, int64(5), created.ID)

	w = call(t, r, http.MethodGet, "/products/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Monitor", decode[products.Product](t, w).Name)

	w = call(t, r, http.MethodPut, "/products/5", products.Product{Name: "Monitor 27", Price: 299, Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[products.Product](t, w)
	assert.Equal(t, "Monitor 27", updated.Name)
	assert.Equal(t, created.CreatedAt.Unix(), updated.CreatedAt.Unix())

	w = call(t, r, http.MethodDelete, "/products/5", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = call(t, r, http.MethodGet, "/products/5", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProductValidation(t *testing.T) {
	r := newServer(t)

	assert.Equal(t, http.StatusBadRequest, call(t, r, http.MethodPost, "/products", products.Product{Name: "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, r, http.MethodGet, "/products/abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, call(t, r, http.MethodPut, "/products/99", products.Product{Name: "ok", Price: 1}).Code)
}

func TestProductQueries(t *testing.T) {
	r := newServer(t)

	tests := []struct {
		path string
		want []string
	}{
		{path: "/products", want: []string{"Laptop", "Mechanical keyboard", "USB-C dock", "Webcam"}},
		{path: "/products/search?name=KEY", want: []string{"Mechanical keyboard"}},
		{path: "/products/price-range?minPrice=50&maxPrice=150", want: []string{"Mechanical keyboard", "USB-C dock", "Webcam"}},
		{path: "/products/low-stock", want: []string{"USB-C dock", "Webcam"}},
		{path: "/products/low-stock?threshold=1", want: []string{"Webcam"}},
		{path: "/products/out-of-stock", want: []string{"Webcam"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := call(t, r, http.MethodGet, tt.path, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var names []string
			for _, p := range decode[[]products.Product](t, w) {
				names = append(names, p.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	assert.Equal(t, http.StatusBadRequest, call(t, r, http.MethodGet, "/products/price-range?minPrice=9&maxPrice=1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, call(t, r, http.MethodGet, "/products/search", nil).Code)
}

func TestProductAdminEchoesIdentity(t *testing.T) {
	r := newServer(t)

	w := call(t, r, http.MethodGet, "/products/admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product management (ADMIN) : admin", w.Body.String())
}
