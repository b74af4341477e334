package sentry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	gosentry "github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loocate/loocate/internal/telemetry"
)

func TestInit_EmptyDSN(t *testing.T) {
	assert.NoError(t, Init(Config{}))
}

func TestInit_InvalidDSN(t *testing.T) {
	err := Init(Config{DSN: "not a dsn"})
	assert.Error(t, err)
}

func TestCaptureError_NilError(t *testing.T) {
	assert.NotPanics(t, func() { CaptureError(nil, nil, nil) })
}

func TestCaptureError_NonNilError(t *testing.T) {
	assert.NotPanics(t, func() {
		CaptureError(errors.New("test error"), map[string]string{"key": "value"}, map[string]interface{}{"extra": 123})
	})
}

func TestCaptureErrorWithContext(t *testing.T) {
	ctx := telemetry.WithCorrelationID(context.Background(), "corr-1")
	ctx = telemetry.WithScreenID(ctx, "screen-1")

	assert.NotPanics(t, func() {
		CaptureErrorWithContext(ctx, nil, nil, nil)
		CaptureErrorWithContext(ctx, errors.New("test error"), map[string]string{"route": "/x"}, nil)
	})
}

func TestAddBreadcrumb(t *testing.T) {
	assert.NotPanics(t, func() {
		AddBreadcrumb("search", "nearby search", gosentry.LevelInfo, map[string]interface{}{"radius": 1500})
	})
}

func TestSanitizeEvent(t *testing.T) {
	event := &gosentry.Event{Request: &gosentry.Request{
		Headers: map[string]string{
			"Authorization": "Bearer x",
			"Cookie":        "a=b",
			"X-Api-Key":     "k",
			"Accept":        "application/json",
		},
		QueryString: "key=secret",
	}}

	sanitizeEvent(event)

	assert.Equal(t, map[string]string{"Accept": "application/json"}, event.Request.Headers)
	assert.Equal(t, "[REDACTED]", event.Request.QueryString)

	assert.NotPanics(t, func() { sanitizeEvent(&gosentry.Event{}) })
}

func TestFlush(t *testing.T) {
	assert.NotPanics(t, func() { Flush(0) })
}

func TestGinMiddleware_AttachesHub(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var hub *gosentry.Hub
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/screens/:id", func(c *gin.Context) {
		hub = gosentry.GetHubFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/screens/abc", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, hub)
}

func TestGinMiddleware_RepanicsForRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(gin.CustomRecovery(func(c *gin.Context, _ interface{}) {
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	router.Use(GinMiddleware())
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
