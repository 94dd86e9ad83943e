package gin

import (
	"bytes"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/enset/storefront/common/logger"
)

type loggingCfg struct {
	debug bool
	trace bool
}

type responseWriterCapture struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriterCapture) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// RequestLogging writes one line per handled request when debug is on. The line is
// written through the request logger, so it carries the correlation fields bound further
// down the chain.
func RequestLogging(cfg loggingCfg) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.debug {
			c.Next()
			return
		}

		var reqBody []byte
		if cfg.trace && c.Request.Body != nil {
			if bodyBytes, err := io.ReadAll(c.Request.Body); err == nil {
				reqBody = bodyBytes
				c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}
		}

		var responseCapture *responseWriterCapture
		if cfg.trace {
			responseCapture = &responseWriterCapture{
				ResponseWriter: c.Writer,
				body:           &bytes.Buffer{},
			}
			c.Writer = responseCapture
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Duration("duration", time.Since(start)),
			logger.String("component", componentName),
		}
		if responseCapture != nil {
			fields = append(fields,
				logger.ByteString("request_body", reqBody),
				logger.ByteString("response_body", responseCapture.body.Bytes()),
			)
		}

		level := logger.DebugLevel
		switch {
		case status >= 500:
			level = logger.ErrorLevel
		case status >= 400:
			level = logger.WarnLevel
		}
		logger.FromContext(c.Request.Context()).Log(level, "HTTP request handled", fields...)
	}
}
