package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lojamoda/storefront-auth/pkg/logger"
)

const (
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	loggerKey       = "logger"
)

// LoggingMiddleware tags each request with an id and logs its outcome.
// An incoming X-Request-ID is kept so ids line up with the storefront's logs.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		log := logger.WithContext(map[string]interface{}{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"ip":         c.ClientIP(),
		})
		log.Debug("Incoming request", map[string]interface{}{
			"user_agent": c.Request.UserAgent(),
		})

		c.Set(loggerKey, log)
		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		fields := map[string]interface{}{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"body_size":   c.Writer.Size(),
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		msg := "Request completed"
		switch {
		case statusCode >= 500:
			log.Error(msg, nil, fields)
		case statusCode >= 400:
			log.Warn(msg, fields)
		default:
			log.Info(msg, fields)
		}
	}
}

// GetLoggerFromContext returns the request scoped logger, or the global one.
func GetLoggerFromContext(c *gin.Context) *logger.Logger {
	if log, exists := c.Get(loggerKey); exists {
		if l, ok := log.(*logger.Logger); ok {
			return l
		}
	}
	return logger.Get()
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
