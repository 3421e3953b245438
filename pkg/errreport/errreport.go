// Package errreport forwards unexpected errors to Sentry when a DSN is configured.
package errreport

import (
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/beunreal/config"
	"github.com/d60-Lab/beunreal/pkg/logger"
)

var enabled bool

// Init configures the sentry client. An empty DSN leaves reporting disabled.
func Init(cfg config.SentryConfig, release string) error {
	if cfg.DSN == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     release,
	}); err != nil {
		return err
	}
	enabled = true
	return nil
}

// Enabled reports whether Init installed a client.
func Enabled() bool { return enabled }

// Capture reports err with optional string tags.
func Capture(err error, tags map[string]string) {
	if err == nil || !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		if id := sentry.CaptureException(err); id != nil {
			logger.Debug("sentry event captured", zap.String("event_id", string(*id)))
		}
	})
}

// Flush waits for buffered events.
func Flush() {
	if enabled {
		sentry.Flush(2 * time.Second)
	}
}
