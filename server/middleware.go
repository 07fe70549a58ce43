package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing the client's when present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// requestLogger logs every request at a level chosen by status class.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString("request_id"),
		}
		switch {
		case status >= 500:
			logger.Error("request", attrs...)
		case status >= 400:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// placeholderAuth admits requests presenting the shared placeholder token.
func placeholderAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := presentedToken(c)
		if provided == "" {
			writeError(c, http.StatusBadRequest, "invalid_request_error",
				"missing API key: send the placeholder token as a Bearer token or x-goog-api-key header")
			return
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(c, http.StatusUnauthorized, "authentication_error",
				"invalid API key: use the configured placeholder token")
			return
		}
		c.Next()
	}
}

func presentedToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	if v := c.GetHeader("x-goog-api-key"); v != "" {
		return v
	}
	if v := c.GetHeader("X-API-Key"); v != "" {
		return v
	}
	return c.Query("key")
}
