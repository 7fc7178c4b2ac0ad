// Package monitoring wires error tracking through Sentry.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
)

const flushTimeout = 2 * time.Second

// Init configures the Sentry client when a DSN is present. The returned
// function flushes buffered events and must be deferred by the caller.
func Init(cfg config.MonitoringConfig, log *logger.Logger) func() {
	if cfg.GetSentryDSN() == "" {
		log.Info("sentry disabled (no DSN configured)")
		return func() {}
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.GetSentryDSN(),
		Environment:      cfg.GetEnv(),
		AttachStacktrace: true,
	})
	if err != nil {
		log.Error("failed to initialize sentry", "error", err)
		return func() {}
	}

	log.Info("sentry initialized", "environment", cfg.GetEnv())
	return func() { sentry.Flush(flushTimeout) }
}

// CaptureError reports err with optional tags. It is a no-op when Sentry
// was never initialized.
func CaptureError(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Recovery converts handler panics into 500 responses and reports them.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic: %v", r)
				log.Error("handler panic", "path", c.Request.URL.Path, "error", err)
				CaptureError(c.Request.Context(), err, map[string]string{"path": c.FullPath()})
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
