package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/loocate/loocate/internal/errors"
	"github.com/loocate/loocate/internal/sentry"
	"github.com/loocate/loocate/internal/telemetry"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error *errors.AppError `json:"error"`
}

// ErrorHandler renders errors attached with c.Error as AppError JSON and
// turns panics into internal errors. Server side failures go to Sentry.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				ctx := c.Request.Context()
				telemetry.GetContextualLogger(ctx).WithFields(map[string]interface{}{
					"operation":   "error_handler_panic",
					"panic_value": fmt.Sprintf("%v", r),
					"stack_trace": string(debug.Stack()),
					"service":     "middleware",
				}).Error("Panic recovered in HTTP handler")

				err := errors.NewInternalError(fmt.Sprintf("Panic in handler: %v", r), nil)
				sentry.CaptureErrorWithContext(ctx, err, map[string]string{"route": c.FullPath()}, nil)
				respond(c, err)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		HandleError(c, c.Errors.Last().Err)
	}
}

// HandleError logs err and writes it as the response.
func HandleError(c *gin.Context, err error) {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		appErr = errors.NewInternalError("An unexpected error occurred", err)
	}
	logError(c, appErr)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		sentry.CaptureErrorWithContext(c.Request.Context(), appErr,
			map[string]string{"route": c.FullPath(), "error_code": appErr.Code}, appErr.Metadata)
	}
	respond(c, appErr)
}

func respond(c *gin.Context, appErr *errors.AppError) {
	if appErr.CorrelationID == "" {
		appErr = appErr.WithCorrelationID(telemetry.GetCorrelationID(c.Request.Context()))
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: appErr})
}

// logError logs the error with appropriate level based on error type
func logError(c *gin.Context, appErr *errors.AppError) {
	logger := telemetry.GetContextualLogger(c.Request.Context()).WithFields(map[string]interface{}{
		"operation":  "error_handler_log",
		"error_type": string(appErr.Type),
		"error_code": appErr.Code,
		"route":      c.FullPath(),
		"service":    "middleware",
	})

	for k, v := range appErr.Metadata {
		logger = logger.WithField(k, v)
	}
	if appErr.Details != "" {
		logger = logger.WithField("details", appErr.Details)
	}

	switch appErr.Type {
	case errors.ErrorTypeValidation, errors.ErrorTypeIndexOutOfRange, errors.ErrorTypeRateLimit:
		logger.Warn(appErr.Message)
	case errors.ErrorTypeNotFound, errors.ErrorTypePermissionDenied:
		logger.Info(appErr.Message)
	default:
		logger.Error(appErr.Message)
	}
}
