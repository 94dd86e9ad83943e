package resty_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/mocktracer"
	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	interceptors "github.com/enset/storefront/http/interceptors/resty"
)

func TestTracingFinishesEverySpan(t *testing.T) {
	mt := mocktracer.Start()
	defer mt.Stop()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer up.Close()
	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	client := resty.New()
	interceptors.InjectInterceptors(client, interceptors.WithPropagationEnabled(false))

	resp, err := client.R().Get(up.URL + "/products/1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode())

	_, err = client.R().Get(downURL + "/products/1")
	require.Error(t, err)

	spans := mt.FinishedSpans()
	require.Len(t, spans, 2)
	for _, s := range spans {
		assert.Equal(t, "http.request", s.OperationName())
	}
}
