package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/loocate/loocate/internal/telemetry"
)

func TestLoggingMiddleware_CorrelationAndScreenID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var correlationID, screenID string
	router := gin.New()
	router.Use(LoggingMiddleware(nil))
	router.GET("/screens/:id", func(c *gin.Context) {
		correlationID = telemetry.GetCorrelationID(c.Request.Context())
		screenID = telemetry.GetScreenID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screens/abc", nil))

	assert.NotEmpty(t, correlationID)
	assert.Equal(t, correlationID, w.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "abc", screenID)

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/screens/abc", nil)
	req.Header.Set("X-Correlation-ID", "given")
	router.ServeHTTP(w, req)

	assert.Equal(t, "given", correlationID)
	assert.Equal(t, "given", w.Header().Get("X-Correlation-ID"))
}

func TestLoggingMiddleware_LogBodyKeepsFullBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var received string
	router := gin.New()
	router.Use(LoggingMiddleware(&LoggingConfig{LogBody: true, MaxBodySize: 4}))
	router.POST("/echo", func(c *gin.Context) {
		data, _ := io.ReadAll(c.Request.Body)
		received = string(data)
		c.String(http.StatusOK, received)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader("0123456789")))

	assert.Equal(t, "0123456789", received)
	assert.Equal(t, "0123456789", w.Body.String())
}

func TestLoggingMiddleware_SkipPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(LoggingMiddleware(nil))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Correlation-ID"))
}
