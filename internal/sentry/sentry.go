// Package sentry provides error tracking integration with Sentry/GlitchTip.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/loocate/loocate/internal/telemetry"
)

// Config holds the reporting settings. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Environment string
	Release     string
	SampleRate  float64
}

// Init initializes Sentry with the given configuration.
// Returns nil if the DSN is empty (graceful degradation).
func Init(cfg Config) error {
	if cfg.DSN == "" {
		return nil
	}
	if cfg.SampleRate <= 0 || cfg.SampleRate > 1 {
		cfg.SampleRate = 1
	}
	if cfg.Release == "" {
		cfg.Release = "loocate@dev"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		SampleRate:  cfg.SampleRate,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			sanitizeEvent(event)
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	return nil
}

// Flush flushes any buffered events before shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// CaptureError captures an error with optional context.
func CaptureError(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil {
		return
	}

	hub := sentry.CurrentHub().Clone()
	applyScope(hub.Scope(), tags, extras)
	hub.CaptureException(err)
}

// CaptureErrorWithContext captures an error using the request's hub, tagged
// with the correlation and screen ids carried by ctx.
func CaptureErrorWithContext(ctx context.Context, err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		if correlationID := telemetry.GetCorrelationID(ctx); correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		if screenID := telemetry.GetScreenID(ctx); screenID != "" {
			scope.SetTag("screen_id", screenID)
		}
		applyScope(scope, tags, extras)
		hub.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb to the current scope.
func AddBreadcrumb(category, message string, level sentry.Level, data map[string]interface{}) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    level,
		Data:     data,
	})
}

func applyScope(scope *sentry.Scope, tags map[string]string, extras map[string]interface{}) {
	for k, v := range tags {
		scope.SetTag(k, v)
	}
	for k, v := range extras {
		scope.SetExtra(k, v)
	}
}

// sanitizeEvent removes sensitive data from Sentry events.
func sanitizeEvent(event *sentry.Event) {
	if event.Request == nil {
		return
	}
	delete(event.Request.Headers, "Authorization")
	delete(event.Request.Headers, "Cookie")
	delete(event.Request.Headers, "X-Api-Key")
	if event.Request.QueryString != "" {
		event.Request.QueryString = "[REDACTED]"
	}
}
