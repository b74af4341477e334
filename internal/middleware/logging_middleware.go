package middleware

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loocate/loocate/internal/telemetry"
	"github.com/sirupsen/logrus"
)

// LoggingConfig holds the configuration for logging middleware
type LoggingConfig struct {
	SkipPaths   []string `json:"skip_paths"`
	LogBody     bool     `json:"log_body"`
	LogHeaders  bool     `json:"log_headers"`
	MaxBodySize int      `json:"max_body_size"` // bytes
}

// DefaultLoggingConfig returns the default logging middleware configuration
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		SkipPaths: []string{
			"/health",
			"/health/live",
			"/health/ready",
			"/metrics",
		},
		LogBody:     false,
		LogHeaders:  true,
		MaxBodySize: 1024, // 1KB
	}
}

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

// slowRequest is the latency above which a successful request logs at warn.
const slowRequest = 5 * time.Second

var sensitiveHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	"X-Api-Key":     true,
}

// LoggingMiddleware tags the request context with a correlation id and the
// screen id from the route, then logs one line per completed request.
func LoggingMiddleware(config *LoggingConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultLoggingConfig()
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		ctx := requestContext(c)
		c.Request = c.Request.WithContext(ctx)

		fields := requestFields(c, config)
		logger := telemetry.LogFromContext(ctx)
		logger.WithFields(fields).Debug("Incoming HTTP request")

		writer := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
			logBody:        config.LogBody,
			maxBodySize:    config.MaxBodySize,
		}
		c.Writer = writer

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()
		fields["status"] = status
		fields["duration_ms"] = float64(duration.Nanoseconds()) / 1e6
		fields["size"] = c.Writer.Size()
		if config.LogBody && writer.body.Len() > 0 {
			fields["response_body"] = writer.body.String()
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.Errors()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= 500:
			entry.Error("HTTP request completed with server error")
		case status >= 400:
			entry.Warn("HTTP request completed with client error")
		case duration > slowRequest:
			entry.Warn("HTTP request completed (slow)")
		default:
			entry.Info("HTTP request completed")
		}
	}
}

// requestContext reuses the caller's correlation id or mints one, echoes it
// back, and attaches the screen id when the route has one.
func requestContext(c *gin.Context) context.Context {
	correlationID := c.GetHeader(CorrelationHeader)
	if correlationID == "" {
		correlationID = telemetry.NewCorrelationID()
	}
	c.Header(CorrelationHeader, correlationID)

	ctx := telemetry.WithCorrelationID(c.Request.Context(), correlationID)
	if screenID := c.Param("id"); screenID != "" {
		ctx = telemetry.WithScreenID(ctx, screenID)
	}
	return ctx
}

func requestFields(c *gin.Context, config *LoggingConfig) logrus.Fields {
	fields := logrus.Fields{
		"service":    "http",
		"operation":  c.FullPath(),
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"query":      c.Request.URL.RawQuery,
		"user_agent": c.Request.UserAgent(),
		"remote_ip":  c.ClientIP(),
	}
	if config.LogHeaders {
		headers := make(map[string]string, len(c.Request.Header))
		for name, values := range c.Request.Header {
			switch {
			case sensitiveHeaders[name]:
				headers[name] = "[REDACTED]"
			case len(values) > 0:
				headers[name] = values[0]
			}
		}
		fields["headers"] = headers
	}
	if config.LogBody && c.Request.Body != nil {
		prefix, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(config.MaxBodySize)))
		if err == nil {
			c.Request.Body = readCloser{io.MultiReader(bytes.NewReader(prefix), c.Request.Body), c.Request.Body}
			fields["body"] = string(prefix)
		}
	}
	return fields
}

// readCloser replays a logged body prefix ahead of the unread remainder.
type readCloser struct {
	io.Reader
	io.Closer
}

// responseWriter wraps gin.ResponseWriter to capture response data
type responseWriter struct {
	gin.ResponseWriter
	body        *bytes.Buffer
	logBody     bool
	maxBodySize int
}

// Write captures the response body if logging is enabled
func (w *responseWriter) Write(data []byte) (int, error) {
	if w.logBody && w.body.Len() < w.maxBodySize {
		remaining := w.maxBodySize - w.body.Len()
		if len(data) > remaining {
			w.body.Write(data[:remaining])
		} else {
			w.body.Write(data)
		}
	}
	return w.ResponseWriter.Write(data)
}

// WriteString captures the response body if logging is enabled
func (w *responseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}
