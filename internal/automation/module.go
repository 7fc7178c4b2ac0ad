// Package automation provides the trigger rule bounded context. It listens
// to funnel and sequence events and runs the matching rules.
package automation

import (
	"context"
	"fmt"

	"zapflow_backend/internal/automation/domain"
	"zapflow_backend/internal/automation/engine"
	"zapflow_backend/internal/automation/ports"
	"zapflow_backend/internal/automation/repository"
	"zapflow_backend/internal/events"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Enqueuer hands events to a durable queue. The worker side calls
// Engine().ProcessEvent.
type Enqueuer interface {
	EnqueueAutomationEvent(ctx context.Context, event domain.Event) error
}

// Module is the automation bounded context. It has no HTTP routes.
type Module struct {
	repo   *repository.Repository
	engine *engine.Engine
	queue  Enqueuer
	log    *logger.Logger
}

// NewModule wires the rule repository and the trigger engine.
func NewModule(pool *pgxpool.Pool, dispatcher ports.MessageDispatcher, enroller ports.Enroller, log *logger.Logger, m *metrics.Metrics) *Module {
	repo := repository.New(pool)
	return &Module{
		repo:   repo,
		engine: engine.New(repo, repo, dispatcher, enroller, log, m),
		log:    log.WithComponent("automation"),
	}
}

// Engine returns the trigger engine.
func (m *Module) Engine() *engine.Engine {
	return m.engine
}

// Repository returns the rule and audit repository.
func (m *Module) Repository() *repository.Repository {
	return m.repo
}

// SetQueue makes event handling durable: events are enqueued instead of
// being processed in-process.
func (m *Module) SetQueue(q Enqueuer) {
	m.queue = q
}

// RegisterHandlers subscribes to the events that can fire trigger rules.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.FunnelStageChanged{}.EventName(), m)
	bus.Subscribe(events.DealWon{}.EventName(), m)
	bus.Subscribe(events.DealLost{}.EventName(), m)
	bus.Subscribe(events.SequenceCompleted{}.EventName(), m)
}

// Handle translates a bus event and either enqueues or processes it.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	ev, ok := Translate(event)
	if !ok {
		return nil
	}

	if m.queue != nil {
		if err := m.queue.EnqueueAutomationEvent(ctx, ev); err != nil {
			return fmt.Errorf("enqueue %s event: %w", ev.Type(), err)
		}
		return nil
	}

	_, err := m.engine.ProcessEvent(ctx, ev)
	return err
}

// Translate maps bus events to trigger events.
func Translate(event events.Event) (domain.Event, bool) {
	switch e := event.(type) {
	case events.FunnelStageChanged:
		return domain.StageChanged{Subject: subjectOf(e.Contact), StageTransition: transition(e.CardID, e.FromStage, e.ToStage)}, true
	case events.DealWon:
		return domain.DealWon{Subject: subjectOf(e.Contact), StageTransition: transition(e.CardID, e.FromStage, e.ToStage)}, true
	case events.DealLost:
		return domain.DealLost{Subject: subjectOf(e.Contact), StageTransition: transition(e.CardID, e.FromStage, e.ToStage)}, true
	case events.SequenceCompleted:
		return domain.SequenceCompleted{
			Subject:        subjectOf(e.Contact),
			SequenceID:     e.SequenceID,
			SubscriptionID: e.SubscriptionID,
		}, true
	default:
		return nil, false
	}
}

func subjectOf(c events.Contact) domain.Subject {
	return domain.Subject{
		ConnectionID:   c.ConnectionID,
		ContactID:      c.ContactID,
		ConversationID: c.ConversationID,
		Name:           c.Name,
		Phone:          c.Phone,
		Email:          c.Email,
	}
}

func transition(cardID uuid.UUID, from, to string) domain.StageTransition {
	return domain.StageTransition{CardID: cardID, FromStage: from, ToStage: to}
}
