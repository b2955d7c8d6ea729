package middleware

import (
	"time"

	"alpha_gateway/applog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
	loggerKey       = "logger"
)

// RequestLogger tags each request with an id and logs failed or slow requests.
func RequestLogger(logger *applog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)
		reqLogger := logger.WithCorrelationId(id)
		c.Set(loggerKey, reqLogger)

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		if status >= 400 || duration > time.Second {
			reqLogger.Warn().
				Str("method", c.Request.Method).
				Str("path", path).
				Int("status", status).
				Dur("duration", duration).
				Msg("request")
			return
		}
		reqLogger.Debug().
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Msg("request")
	}
}

// LoggerFrom returns the request-scoped logger, or fallback when none is set.
func LoggerFrom(c *gin.Context, fallback *applog.Logger) *applog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*applog.Logger); ok {
			return l
		}
	}
	return fallback
}

// validRequestID accepts short ids made of letters, digits and dashes
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '-') {
			return false
		}
	}
	return true
}
