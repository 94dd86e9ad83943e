package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/enset/storefront/common/logger"
	"github.com/enset/storefront/observability"
)

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"

	defaultProbeTimeout = 2 * time.Second
)

// Probe checks one dependency. Check returns nil when it is usable.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// HealthHandler answers 200 with status UP when every probe passes, else 503 with the
// failing components marked DOWN. Probes run concurrently under a shared timeout.
func HealthHandler(probes ...Probe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultProbeTimeout)
		defer cancel()

		resp := HealthResponse{Status: StatusUp}
		if len(probes) > 0 {
			resp.Components = make(map[string]string, len(probes))
		}

		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, p := range probes {
			g.Go(func() error {
				span, pctx := observability.StartSpan(gctx, "health.probe")
				span.SetTag("probe", p.Name)
				err := p.Check(pctx)
				span.Finish()

				status := StatusUp
				if err != nil {
					status = StatusDown
					logger.FromContext(pctx).Warn("health probe failed", logger.String("probe", p.Name), logger.Error(err))
				}
				mu.Lock()
				defer mu.Unlock()
				resp.Components[p.Name] = status
				if err != nil {
					resp.Status = StatusDown
				}
				return nil
			})
		}
		_ = g.Wait()

		code := http.StatusOK
		if resp.Status != StatusUp {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}
