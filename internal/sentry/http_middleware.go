package sentry

import (
	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

// GinMiddleware attaches a per-request hub to the request context so later
// captures carry the route and method. Panics are reported and re-raised
// for the recovery middleware further down the chain.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetTag("http.method", c.Request.Method)
		hub.Scope().SetTag("http.route", c.FullPath())
		hub.Scope().SetRequest(c.Request)

		c.Request = c.Request.WithContext(sentry.SetHubOnContext(c.Request.Context(), hub))

		defer func() {
			if r := recover(); r != nil {
				hub.RecoverWithContext(c.Request.Context(), r)
				panic(r)
			}
		}()

		c.Next()
	}
}
