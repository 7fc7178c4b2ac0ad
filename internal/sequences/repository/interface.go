package repository

import (
	"context"
	"time"

	"zapflow_backend/internal/sequences/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// SequenceReader loads sequences and their ordered steps.
type SequenceReader interface {
	GetSequence(ctx context.Context, connectionID, sequenceID uuid.UUID) (domain.Sequence, error)
	// GetSteps returns the steps of a sequence ordered by order_index.
	GetSteps(ctx context.Context, sequenceID uuid.UUID) ([]domain.Step, error)
}

// StepWriter mutates step ordering and telemetry.
type StepWriter interface {
	ReorderSteps(ctx context.Context, sequenceID uuid.UUID, orderedStepIDs []uuid.UUID) error
	IncrementSentCount(ctx context.Context, stepID uuid.UUID) error
}

// SubscriptionStore manages enrollment rows.
type SubscriptionStore interface {
	ContactExists(ctx context.Context, connectionID, contactID uuid.UUID) (bool, error)
	GetOpenSubscription(ctx context.Context, contactID, sequenceID uuid.UUID) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub domain.Subscription) error
	GetSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error)
	ListSubscriptions(ctx context.Context, connectionID, sequenceID uuid.UUID) ([]domain.Subscription, error)
	CancelSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID, at time.Time) (domain.Subscription, error)
}

// DueStore claims and settles due subscriptions for the processor.
type DueStore interface {
	// ClaimDue locks up to limit due subscriptions, pushes their next_step_at
	// to leaseUntil and returns them. IDs in exclude are never returned.
	ClaimDue(ctx context.Context, now, leaseUntil time.Time, limit int, exclude []uuid.UUID) ([]domain.DueSubscription, error)
	// ApplyTransition writes t only when the row is still open and still on
	// expectedStep. It reports whether the row was updated.
	ApplyTransition(ctx context.Context, subscriptionID uuid.UUID, expectedStep int, t domain.Transition) (bool, error)
	// ReleaseClaims makes leased but unprocessed subscriptions due at now.
	ReleaseClaims(ctx context.Context, ids []uuid.UUID, leaseUntil, now time.Time) error
}

// Store is the full persistence gateway of the sequences module.
type Store interface {
	SequenceReader
	StepWriter
	SubscriptionStore
	DueStore
}
