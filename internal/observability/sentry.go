package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tbourn/go-mail-dispatch/internal/config"
)

// sentryFlushTimeout bounds the final flush when no context deadline is set.
const sentryFlushTimeout = 2 * time.Second

var sentryInit = sentry.Init

// SetupSentry initializes the global Sentry client. An empty DSN disables
// reporting and returns a no-op shutdown.
func SetupSentry(cfg config.SentryConfig, release string) (ShutdownFunc, error) {
	if cfg.DSN == "" {
		return noopShutdown, nil
	}
	err := sentryInit(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		AttachStacktrace: true,
		SendDefaultPII:   false,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry init: %w", err)
	}
	return func(ctx context.Context) error {
		timeout := sentryFlushTimeout
		if dl, ok := ctx.Deadline(); ok {
			timeout = time.Until(dl)
		}
		if !sentry.Flush(timeout) {
			return fmt.Errorf("sentry flush: timed out after %s", timeout)
		}
		return nil
	}, nil
}
