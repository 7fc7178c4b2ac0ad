// Package sequences provides the drip-sequence bounded context module.
// It owns enrollment, step ordering and the pending-subscription processor.
package sequences

import (
	apphttp "zapflow_backend/internal/http"
	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/internal/sequences/handler"
	"zapflow_backend/internal/sequences/ports"
	"zapflow_backend/internal/sequences/repository"
	"zapflow_backend/internal/sequences/service"
	"zapflow_backend/platform/config"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"
	"zapflow_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ModuleConfig is the configuration the sequences module reads.
type ModuleConfig interface {
	config.SequencesConfig
	GetWhatsAppDefaultRegion() string
}

// Module is the sequences bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	service   *service.Service
	processor *service.Processor
	repo      *repository.Repository
}

// NewModule wires the repository, enrollment service, processor and handler.
// Optional processor collaborators (media, alerts, run lock, event bus) are
// passed through opts.
func NewModule(
	pool *pgxpool.Pool,
	dispatcher ports.MessageDispatcher,
	cfg ModuleConfig,
	val *validator.Validator,
	log *logger.Logger,
	m *metrics.Metrics,
	opts ...service.ProcessorOption,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, log, m)

	procCfg := service.ProcessorConfig{
		Concurrency:    cfg.GetSequencesConcurrency(),
		BatchSize:      cfg.GetSequencesBatchSize(),
		RunBudget:      cfg.GetSequencesRunBudget(),
		ClaimLease:     cfg.GetSequencesClaimLease(),
		AlertThreshold: cfg.GetSequencesFailureAlertThreshold(),
		Policy: domain.Policy{
			Location:     cfg.GetSequencesTimezone(),
			Tolerance:    cfg.GetSequencesSendWindowTolerance(),
			RetryBackoff: cfg.GetSequencesRetryBackoff(),
		},
		DefaultRegion: cfg.GetWhatsAppDefaultRegion(),
	}
	if m != nil {
		opts = append(opts, service.WithMetrics(m))
	}
	processor := service.NewProcessor(repo, dispatcher, procCfg, log, opts...)
	h := handler.New(svc, processor, val, log, cfg.GetSequencesRunBudget()+config.RunTimeoutMargin)

	return &Module{
		handler:   h,
		service:   svc,
		processor: processor,
		repo:      repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sequences"
}

// Service returns the enrollment service for other modules.
func (m *Module) Service() *service.Service {
	return m.service
}

// Processor returns the pending-subscription processor.
func (m *Module) Processor() *service.Processor {
	return m.processor
}

// RegisterRoutes mounts sequence routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	seq := ctx.Protected.Group("/sequences")
	seq.GET("/:id", m.handler.GetSequence)
	seq.POST("/:id/enroll", m.handler.Enroll)
	seq.GET("/:id/subscriptions", m.handler.ListSubscriptions)
	seq.PUT("/:id/steps/order", m.handler.ReorderSteps)

	subs := ctx.Protected.Group("/subscriptions")
	subs.GET("/:id", m.handler.GetSubscription)
	subs.POST("/:id/cancel", m.handler.Cancel)

	ctx.Internal.POST("/sequences/process", m.handler.ProcessPending)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
