// Package funnel provides the Kanban funnel bounded context module.
package funnel

import (
	"zapflow_backend/internal/events"
	"zapflow_backend/internal/funnel/handler"
	"zapflow_backend/internal/funnel/repository"
	"zapflow_backend/internal/funnel/service"
	apphttp "zapflow_backend/internal/http"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"
	"zapflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the funnel bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the funnel module. Stage changes are published on bus.
func NewModule(pool *pgxpool.Pool, bus events.Publisher, val *validator.Validator, log *logger.Logger, m *metrics.Metrics) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, bus, log, m)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "funnel"
}

// Service returns the funnel service.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts funnel routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	g := ctx.Protected.Group("/funnel")
	g.POST("/cards/:id/move", m.handler.MoveCard)
	g.GET("/cards/:id/history", m.handler.History)
	g.GET("/stages/:stage/cards", m.handler.ListStage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
