package service

import (
	"context"
	"errors"
	"strings"

	"zapflow_backend/internal/events"
	"zapflow_backend/internal/funnel/domain"
	"zapflow_backend/internal/funnel/repository"
	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	msgCardNotFound   = "card not found"
	msgStageRequired  = "toStage is required"
	msgConcurrentMove = "card was moved by another request, reload the board and retry"
)

// MoveResult describes a completed move.
type MoveResult struct {
	Card         domain.Card
	FromStage    string
	ToStage      string
	Position     int
	StageChanged bool
	// Repositioned counts rows whose stage or position was rewritten.
	Repositioned int
}

// Service reconciles funnel card positions and announces stage changes.
type Service struct {
	repo    repository.Store
	bus     events.Publisher
	log     *logger.Logger
	metrics *metrics.Metrics
}

func New(repo repository.Store, bus events.Publisher, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, bus: bus, log: log, metrics: m}
}

// MoveCard moves a card to toStage at newIndex and renumbers the affected
// columns densely. Cross-stage moves append stage history and, once
// committed, publish FunnelStageChanged plus DealWon or DealLost when the
// target stage closes the deal.
func (s *Service) MoveCard(ctx context.Context, in domain.MoveInput) (MoveResult, error) {
	in.ToStage = strings.TrimSpace(in.ToStage)
	if in.ToStage == "" {
		return MoveResult{}, apperr.Validation(msgStageRequired)
	}
	if in.Notes != nil && strings.TrimSpace(*in.Notes) == "" {
		in.Notes = nil
	}

	plan, err := s.repo.ApplyMove(ctx, in)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return MoveResult{}, apperr.NotFound(msgCardNotFound)
	case errors.Is(err, repository.ErrConcurrentMove):
		return MoveResult{}, apperr.Conflict(msgConcurrentMove)
	case err != nil:
		return MoveResult{}, apperr.Internal("move card", err)
	}

	result := MoveResult{
		Card:         plan.Card,
		FromStage:    plan.FromStage,
		ToStage:      plan.ToStage,
		Position:     plan.Index,
		StageChanged: plan.StageChanged(),
		Repositioned: len(plan.Updates),
	}

	kind := "same_stage"
	if result.StageChanged {
		kind = "cross_stage"
		s.publishStageEvents(ctx, plan)
	}
	if s.metrics != nil {
		s.metrics.FunnelMoves.WithLabelValues(kind).Inc()
	}
	s.log.WithContext(ctx).Info("funnel card moved",
		"cardId", plan.Card.ID,
		"fromStage", plan.FromStage,
		"toStage", plan.ToStage,
		"position", plan.Index,
		"repositioned", len(plan.Updates),
	)
	return result, nil
}

// ListStage returns one stage column in board order.
func (s *Service) ListStage(ctx context.Context, connectionID uuid.UUID, stage string) ([]domain.Card, error) {
	stage = strings.TrimSpace(stage)
	if stage == "" {
		return nil, apperr.Validation(msgStageRequired)
	}
	cards, err := s.repo.ListStage(ctx, connectionID, stage)
	if err != nil {
		return nil, apperr.Internal("list stage", err)
	}
	return cards, nil
}

// History returns a card's stage changes, oldest first.
func (s *Service) History(ctx context.Context, connectionID, cardID uuid.UUID) ([]domain.HistoryEntry, error) {
	if _, err := s.repo.GetCard(ctx, connectionID, cardID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound(msgCardNotFound)
		}
		return nil, apperr.Internal("get card", err)
	}
	items, err := s.repo.ListHistory(ctx, connectionID, cardID)
	if err != nil {
		return nil, apperr.Internal("list history", err)
	}
	return items, nil
}

func (s *Service) publishStageEvents(ctx context.Context, plan domain.Plan) {
	if s.bus == nil {
		return
	}
	card := plan.Card
	contact := events.Contact{
		ConnectionID:   card.ConnectionID,
		ContactID:      card.ContactID,
		ConversationID: card.ConversationID,
		Name:           card.ContactName,
		Phone:          card.ContactPhone,
		Email:          card.ContactEmail,
	}

	s.bus.Publish(ctx, events.FunnelStageChanged{
		BaseEvent: events.NewBaseEvent(),
		Contact:   contact,
		CardID:    card.ID,
		FromStage: plan.FromStage,
		ToStage:   plan.ToStage,
	})

	switch domain.TerminalOf(plan.ToStage) {
	case domain.TerminalWon:
		s.bus.Publish(ctx, events.DealWon{
			BaseEvent: events.NewBaseEvent(),
			Contact:   contact,
			CardID:    card.ID,
			FromStage: plan.FromStage,
			ToStage:   plan.ToStage,
		})
	case domain.TerminalLost:
		s.bus.Publish(ctx, events.DealLost{
			BaseEvent: events.NewBaseEvent(),
			Contact:   contact,
			CardID:    card.ID,
			FromStage: plan.FromStage,
			ToStage:   plan.ToStage,
		})
	}
}
