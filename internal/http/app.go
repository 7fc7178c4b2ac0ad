// Package http holds the composition types shared by main and the router:
// the App assembled at startup and the Module contract each bounded
// context implements to mount its routes.
package http

import (
	"context"

	"zapflow_backend/internal/events"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"

	"github.com/gin-gonic/gin"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
	GetCronSecret() string
}

// HealthChecker backs GET /api/health. *pgxpool.Pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config  RouterConfig
	Logger  *logger.Logger
	Health  HealthChecker
	Metrics *metrics.Metrics // nil disables /metrics
	// EventBus is kept here so modules registered later can subscribe.
	EventBus events.Bus
	Modules  []Module
}

// Module is implemented by every context that exposes HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(rc *RouterContext)
}

// RouterContext hands modules the two pre-guarded route groups.
type RouterContext struct {
	// Protected requires a JWT carrying a connection_id.
	Protected *gin.RouterGroup
	// Internal requires the cron shared secret.
	Internal *gin.RouterGroup
}
