package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/ctxutil"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

// RequestLogger writes one line per request. Health probes are not logged.
func RequestLogger(log *logger.Logger, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if skip[route] {
			return
		}

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", c.Writer.Size(),
			"client_ip", c.ClientIP(),
		}
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			fields = append(fields, "user_id", rd.UserID.String(), "org_id", rd.OrgID.String())
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			reqLog.Error("http request", fields...)
		case status >= 400:
			reqLog.Warn("http request", fields...)
		default:
			reqLog.Info("http request", fields...)
		}
	}
}
