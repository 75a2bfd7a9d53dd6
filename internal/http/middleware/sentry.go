package middleware

import (
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// ReportServerErrors forwards errors attached to 5xx responses (c.Error) to
// Sentry. It relies on sentrygin.New having attached a hub; without one it is
// a no-op, so it is safe to install when Sentry is disabled.
func ReportServerErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 500 || len(c.Errors) == 0 {
			return
		}
		hub := sentrygin.GetHubFromContext(c)
		if hub == nil {
			return
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("request_id", RequestIDFrom(c))
			scope.SetTag("route", c.FullPath())
			if who := RequesterFrom(c); who != "" {
				scope.SetUser(sentry.User{Email: MaskEmail(who)})
			}
			for _, e := range c.Errors {
				hub.CaptureException(e.Err)
			}
		})
	}
}
