package rest

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dagline/dagline/internal/logger"
)

const (
	RequestIDHeader     = "X-Request-ID"
	ContextKeyRequestID = "request_id"
)

// LoggingMiddleware logs every request's lifecycle with a request id,
// grounded on the teacher's middleware_logging.go.
type LoggingMiddleware struct {
	logger *logger.Logger
}

func NewLoggingMiddleware(log *logger.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{logger: log}
}

func (m *LoggingMiddleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(ContextKeyRequestID, requestID)
		c.Header(RequestIDHeader, requestID)

		path := c.Request.URL.Path
		method := c.Request.Method

		m.logger.Info("request started",
			"request_id", requestID,
			"method", method,
			"path", path,
			"client_ip", c.ClientIP(),
		)

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		logArgs := []any{
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", status,
			"duration_ms", duration.Milliseconds(),
		}
		if len(c.Errors) > 0 {
			logArgs = append(logArgs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			m.logger.Error("request completed", logArgs...)
		case status >= 400:
			m.logger.Warn("request completed", logArgs...)
		default:
			m.logger.Info("request completed", logArgs...)
		}
	}
}

func GetRequestID(c *gin.Context) string {
	v, exists := c.Get(ContextKeyRequestID)
	if !exists {
		return ""
	}
	return v.(string)
}

// RecoveryMiddleware turns a panicking handler into a 500 response
// instead of tearing down the listener, grounded on the teacher's
// middleware_recovery.go. This is the HTTP-layer twin of
// engine.Dispatcher's panic containment around one node's executor
// call — neither layer lets a single bad actor take the process down.
type RecoveryMiddleware struct {
	logger *logger.Logger
}

func NewRecoveryMiddleware(log *logger.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{logger: log}
}

func (m *RecoveryMiddleware) Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestID := GetRequestID(c)
				m.logger.Error("panic recovered",
					"request_id", requestID,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				apiErr := NewAPIError("INTERNAL_ERROR", fmt.Sprintf("internal server error (request_id: %s)", requestID), http.StatusInternalServerError)
				c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr)
			}
		}()
		c.Next()
	}
}
