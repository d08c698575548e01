package server

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Mutter0815/blockmail/pkg/logx"
	"github.com/Mutter0815/blockmail/pkg/metrics"
)

const (
	ctxRequestID = "request_id"
	ctxLogger    = "logger"
)

// Observability tags each request with an id and a logger carrying it, then
// records latency and status once the handler chain returns.
func Observability() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		rid := c.Request.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Set(ctxRequestID, rid)

		l := logx.Named("http").With("rid", rid)
		if sid := c.Param("sid"); sid != "" {
			l = l.With("sid", sid)
		}
		c.Set(ctxLogger, l)

		c.Next()

		lat := time.Since(start).Seconds()
		status := c.Writer.Status()
		// Unmatched routes share one label so ids in paths don't explode cardinality.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, path).Observe(lat)

		fields := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", lat,
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}
		if status >= 500 {
			l.Warnw("http_access", fields...)
			return
		}
		l.Infow("http_access", fields...)
	}
}

// reqLog returns the request's logger, or the process logger outside the
// Observability chain.
func reqLog(c *gin.Context) *zap.SugaredLogger {
	if v, ok := c.Get(ctxLogger); ok {
		if l, ok := v.(*zap.SugaredLogger); ok {
			return l
		}
	}
	return logx.L()
}
