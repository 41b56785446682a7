package observability

import (
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

const sentryFlushTimeout = 2 * time.Second

// InitSentry wires error reporting when a DSN is configured. With an empty
// DSN the global hub stays a no-op, so call sites never need to guard their
// CaptureException calls.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	opts := sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	}
	if release := os.Getenv("APP_RELEASE"); release != "" {
		opts.Release = release
	}

	return sentry.Init(opts)
}

// FlushSentry drains buffered events, typically right before shutdown.
func FlushSentry() {
	sentry.Flush(sentryFlushTimeout)
}
