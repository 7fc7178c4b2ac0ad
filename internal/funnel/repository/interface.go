package repository

import (
	"context"

	"zapflow_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

// Mover applies a reconciled card move atomically.
type Mover interface {
	// ApplyMove locks the affected stage columns, reconciles positions and
	// appends stage history for cross-stage moves, all in one transaction.
	ApplyMove(ctx context.Context, in domain.MoveInput) (domain.Plan, error)
}

// BoardReader reads stage columns.
type BoardReader interface {
	GetCard(ctx context.Context, connectionID, cardID uuid.UUID) (domain.Card, error)
	ListStage(ctx context.Context, connectionID uuid.UUID, stage string) ([]domain.Card, error)
	ListHistory(ctx context.Context, connectionID, cardID uuid.UUID) ([]domain.HistoryEntry, error)
}

// Store is the complete funnel persistence surface.
type Store interface {
	Mover
	BoardReader
}
