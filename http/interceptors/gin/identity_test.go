package gin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enset/storefront/auth"
	"github.com/enset/storefront/common/correlation"
	interceptors "github.com/enset/storefront/http/interceptors/gin"
)

type stubValidator struct {
	err error
}

func (s stubValidator) Validate(_ context.Context, token string) (auth.Claims, error) {
	if s.err != nil {
		return auth.Claims{}, s.err
	}
	if token == "alice-token" {
		return auth.Claims{PreferredUsername: "alice"}, nil
	}
	return auth.Claims{}, auth.NewTrustError(auth.KindExpired, "", nil)
}

type lifecycle struct {
	mu       sync.Mutex
	bound    int
	tornDown int
}

func (l *lifecycle) Bound(correlation.RequestContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bound++
}

func (l *lifecycle) TornDown(correlation.RequestContext) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tornDown++
}

func (l *lifecycle) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bound, l.tornDown
}

type router struct {
	engine  *gin.Engine
	life    *lifecycle
	started chan struct{}
	ended   chan struct{}
}

func newRouter(t *testing.T, edge bool, v correlation.CredentialValidator) *router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	life := &lifecycle{}
	m := correlation.NewManager(v,
		correlation.WithPolicy(auth.NewRoutePolicy(nil, nil)),
		correlation.WithObserver(life))

	opt := interceptors.WithServiceIdentity(m)
	if edge {
		opt = interceptors.WithEdgeIdentity(m)
	}

	rt := &router{engine: gin.New(), life: life, started: make(chan struct{}), ended: make(chan struct{})}
	rt.engine.Use(interceptors.DefaultInterceptors(opt, interceptors.WithTracingEnabled(false))...)

	rt.engine.GET("/actuator/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
	rt.engine.GET("/whoami", func(c *gin.Context) {
		rc, ok := correlation.FromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": rc.Identity(), "correlation_id": rc.CorrelationID()})
	})
	rt.engine.GET("/fail", func(c *gin.Context) {
		_ = c.Error(errors.New("database is on fire"))
	})
	rt.engine.GET("/panic", func(*gin.Context) {
		panic("boom")
	})
	rt.engine.GET("/block", func(c *gin.Context) {
		close(rt.started)
		<-c.Request.Context().Done()
		time.Sleep(200 * time.Millisecond)
		close(rt.ended)
	})
	return rt
}

func (rt *router) do(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	rt.engine.ServeHTTP(w, req)
	return w
}

func TestBoundaryPairsBeginAndEnd(t *testing.T) {
	for _, edge := range []bool{true, false} {
		name := "service"
		if edge {
			name = "edge"
		}
		t.Run(name, func(t *testing.T) {
			tests := []struct {
				path       string
				token      string
				wantStatus int
			}{
				{path: "/whoami", token: "alice-token", wantStatus: http.StatusOK},
				{path: "/fail", token: "alice-token", wantStatus: http.StatusInternalServerError},
				{path: "/panic", token: "alice-token", wantStatus: http.StatusInternalServerError},
				{path: "/whoami", wantStatus: http.StatusUnauthorized},
				{path: "/whoami", token: "stale-token", wantStatus: http.StatusUnauthorized},
				{path: "/actuator/health", wantStatus: http.StatusOK},
			}
			for _, tt := range tests {
				rt := newRouter(t, edge, stubValidator{})
				w := rt.do(t, tt.path, tt.token)

				assert.Equal(t, tt.wantStatus, w.Code, tt.path)
				assert.NotEmpty(t, w.Header().Get("X-Trace-Id"), tt.path)
				bound, tornDown := rt.life.counts()
				assert.Equal(t, 1, bound, tt.path)
				assert.Equal(t, 1, tornDown, tt.path)
			}
		})
	}
}

func TestBoundaryExposesIdentityToHandlers(t *testing.T) {
	rt := newRouter(t, false, stubValidator{})
	w := rt.do(t, "/whoami", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["user"])
	assert.Equal(t, w.Header().Get("X-Trace-Id"), body["correlation_id"])
}

func TestTrustFailureResponses(t *testing.T) {
	tests := []struct {
		name          string
		validator     stubValidator
		token         string
		wantStatus    int
		wantError     string
		wantChallenge bool
	}{
		{
			name:          "missing credential",
			wantStatus:    http.StatusUnauthorized,
			wantError:     "unauthorized",
			wantChallenge: true,
		},
		{
			name:          "expired credential",
			token:         "old",
			wantStatus:    http.StatusUnauthorized,
			wantError:     "invalid_token",
			wantChallenge: true,
		},
		{
			name:       "issuer keys unreachable",
			validator:  stubValidator{err: auth.NewTrustError(auth.KindKeySetUnavailable, "", errors.New("dial tcp"))},
			token:      "alice-token",
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "temporarily_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newRouter(t, false, tt.validator)
			w := rt.do(t, "/whoami", tt.token)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantError, body["error"])
			if tt.wantChallenge {
				assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
			} else {
				assert.Empty(t, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestEdgeTearsDownOnClientDisconnect(t *testing.T) {
	rt := newRouter(t, true, stubValidator{})
	srv := httptest.NewServer(rt.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/block", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer alice-token")

	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-rt.started
	cancel()

	// teardown happens while the handler is still unwinding
	require.Eventually(t, func() bool {
		_, tornDown := rt.life.counts()
		return tornDown == 1
	}, 2*time.Second, time.Millisecond)
	select {
	case <-rt.ended:
		t.Fatal("handler finished before teardown was observed")
	default:
	}

	<-rt.ended
	time.Sleep(10 * time.Millisecond)
	bound, tornDown := rt.life.counts()
	assert.Equal(t, 1, bound)
	assert.Equal(t, 1, tornDown)
}

func TestServiceTearsDownOnCancel(t *testing.T) {
	rt := newRouter(t, false, stubValidator{})
	srv := httptest.NewServer(rt.engine)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/block", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer alice-token")

	go func() {
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
		}
	}()

	<-rt.started
	cancel()
	<-rt.ended

	require.Eventually(t, func() bool {
		_, tornDown := rt.life.counts()
		return tornDown == 1
	}, 2*time.Second, time.Millisecond)
}
