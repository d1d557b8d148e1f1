package httpserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/radixinsight/analytics/internal/logger"
)

// requestIDKey is the gin context key holding the request correlation id.
const requestIDKey = "request_id"

// RequestIDMiddleware attaches a correlation id to every request, taken
// from the X-Request-ID header when present and generated otherwise.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		c.Next()
	}
}

// RequestID returns the correlation id attached to the request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// LoggerMiddleware logs one structured entry per request: method, path,
// status, duration, client IP, and the request id.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		fields := []logger.Field{
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status", statusCode),
			logger.Duration("duration", duration),
			logger.String("client_ip", c.ClientIP()),
			logger.String("request_id", RequestID(c)),
		}

		if query != "" {
			fields = append(fields, logger.String("query", query))
		}

		if len(c.Errors) > 0 {
			messages := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				messages[i] = err.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", messages))
		}

		switch {
		case statusCode >= http.StatusInternalServerError:
			log.Error("HTTP request", fields...)
		case statusCode >= http.StatusBadRequest:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// RecoveryMiddleware catches panics, logs them, and returns a 500.
func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error("Panic recovered",
					logger.Any("error", err),
					logger.String("path", c.Request.URL.Path),
					logger.String("method", c.Request.Method),
					logger.String("request_id", RequestID(c)),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"message": "internal server error",
				})
			}
		}()

		c.Next()
	}
}

// CORSMiddleware handles cross-origin requests, including preflight.
func CORSMiddleware(opts CORSOptions) gin.HandlerFunc {
	opts.setDefaults()

	allowedMethods := strings.Join(opts.AllowedMethods, ", ")
	allowedHeaders := strings.Join(opts.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(int(opts.MaxAge.Seconds()))

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowedOrigin := matchOrigin(origin, opts.AllowedOrigins)
		if allowedOrigin == "" {
			c.Next()
			return
		}

		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", allowedOrigin)
		header.Set("Access-Control-Allow-Methods", allowedMethods)
		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// matchOrigin returns the origin value to echo back, or empty when the
// origin is not allowed. Requests without an Origin header are same-origin.
func matchOrigin(origin string, allowed []string) string {
	if origin == "" {
		return "*"
	}

	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if a == origin {
			return origin
		}
	}

	return ""
}
