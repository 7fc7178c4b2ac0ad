package service

import (
	"context"
	"errors"
	"time"

	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/internal/sequences/repository"
	"zapflow_backend/platform/apperr"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/metrics"

	"github.com/google/uuid"
)

const (
	msgSequenceNotFound     = "sequence not found"
	msgSequenceInactive     = "sequence is not active"
	msgContactNotFound      = "contact not found"
	msgAlreadyEnrolled      = "contact is already enrolled in this sequence"
	msgSubscriptionNotFound = "subscription not found"
	msgSubscriptionClosed   = "subscription is already finished"
	msgStepOrderMismatch    = "step ids must list every step of the sequence exactly once"
)

// EnrollInput identifies who is enrolled into which sequence.
type EnrollInput struct {
	ConnectionID   uuid.UUID
	SequenceID     uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
}

// Store is the persistence the enrollment service needs.
type Store interface {
	repository.SequenceReader
	repository.SubscriptionStore
	ReorderSteps(ctx context.Context, sequenceID uuid.UUID, orderedStepIDs []uuid.UUID) error
}

// Service owns enrollment and sequence management. The same Enroll is used
// by the HTTP endpoint and by trigger rules.
type Service struct {
	repo    Store
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(repo Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, log: log, metrics: m, now: time.Now}
}

// Enroll creates an active subscription due immediately. A contact may hold
// at most one open subscription per sequence; a second attempt is a Conflict.
func (s *Service) Enroll(ctx context.Context, in EnrollInput) (domain.Subscription, error) {
	seq, err := s.repo.GetSequence(ctx, in.ConnectionID, in.SequenceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Subscription{}, apperr.NotFound(msgSequenceNotFound)
		}
		return domain.Subscription{}, apperr.Internal("load sequence", err)
	}
	if !seq.IsActive {
		return domain.Subscription{}, apperr.Validation(msgSequenceInactive)
	}

	exists, err := s.repo.ContactExists(ctx, in.ConnectionID, in.ContactID)
	if err != nil {
		return domain.Subscription{}, apperr.Internal("load contact", err)
	}
	if !exists {
		return domain.Subscription{}, apperr.NotFound(msgContactNotFound)
	}

	existing, err := s.repo.GetOpenSubscription(ctx, in.ContactID, in.SequenceID)
	if err != nil {
		return domain.Subscription{}, apperr.Internal("check existing subscription", err)
	}
	if existing != nil {
		return domain.Subscription{}, alreadyEnrolled(existing.ID)
	}

	now := s.now().UTC()
	sub := domain.Subscription{
		ID:             uuid.New(),
		SequenceID:     in.SequenceID,
		ContactID:      in.ContactID,
		ConnectionID:   in.ConnectionID,
		ConversationID: in.ConversationID,
		CurrentStep:    0,
		Status:         domain.StatusActive,
		StartedAt:      now,
		NextStepAt:     &now,
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrAlreadyEnrolled) {
			return domain.Subscription{}, alreadyEnrolled(uuid.Nil)
		}
		return domain.Subscription{}, apperr.Internal("create subscription", err)
	}

	if s.metrics != nil {
		s.metrics.SubscriptionsEnrolled.Inc()
	}
	s.log.Info("contact enrolled",
		"subscriptionId", sub.ID,
		"sequenceId", sub.SequenceID,
		"contactId", sub.ContactID,
		"connectionId", sub.ConnectionID,
	)
	return sub, nil
}

// Unenroll cancels an open subscription. Terminal subscriptions are never
// reopened or altered.
func (s *Service) Unenroll(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error) {
	sub, err := s.repo.CancelSubscription(ctx, connectionID, subscriptionID, s.now().UTC())
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return domain.Subscription{}, apperr.NotFound(msgSubscriptionNotFound)
	case errors.Is(err, repository.ErrNotOpen):
		return domain.Subscription{}, apperr.Conflict(msgSubscriptionClosed)
	case err != nil:
		return domain.Subscription{}, apperr.Internal("cancel subscription", err)
	}

	s.log.Info("subscription cancelled", "subscriptionId", sub.ID, "connectionId", connectionID)
	return sub, nil
}

func (s *Service) GetSequence(ctx context.Context, connectionID, sequenceID uuid.UUID) (domain.Sequence, error) {
	seq, err := s.repo.GetSequence(ctx, connectionID, sequenceID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Sequence{}, apperr.NotFound(msgSequenceNotFound)
	}
	if err != nil {
		return domain.Sequence{}, apperr.Internal("load sequence", err)
	}
	return seq, nil
}

func (s *Service) GetSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error) {
	sub, err := s.repo.GetSubscription(ctx, connectionID, subscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Subscription{}, apperr.NotFound(msgSubscriptionNotFound)
	}
	if err != nil {
		return domain.Subscription{}, apperr.Internal("load subscription", err)
	}
	return sub, nil
}

func (s *Service) ListSubscriptions(ctx context.Context, connectionID, sequenceID uuid.UUID) ([]domain.Subscription, error) {
	if _, err := s.GetSequence(ctx, connectionID, sequenceID); err != nil {
		return nil, err
	}
	subs, err := s.repo.ListSubscriptions(ctx, connectionID, sequenceID)
	if err != nil {
		return nil, apperr.Internal("list subscriptions", err)
	}
	return subs, nil
}

// ReorderSteps repacks order_index to follow stepIDs. In-flight
// subscriptions keep their numeric current_step, so they continue at the
// step now occupying that index.
func (s *Service) ReorderSteps(ctx context.Context, connectionID, sequenceID uuid.UUID, stepIDs []uuid.UUID) (domain.Sequence, error) {
	seq, err := s.GetSequence(ctx, connectionID, sequenceID)
	if err != nil {
		return domain.Sequence{}, err
	}
	if !sameStepSet(seq.Steps, stepIDs) {
		return domain.Sequence{}, apperr.Validation(msgStepOrderMismatch)
	}

	if err := s.repo.ReorderSteps(ctx, sequenceID, stepIDs); err != nil {
		if errors.Is(err, repository.ErrStepSetMismatch) {
			return domain.Sequence{}, apperr.Validation(msgStepOrderMismatch)
		}
		return domain.Sequence{}, apperr.Internal("reorder steps", err)
	}

	s.log.Info("sequence steps reordered", "sequenceId", sequenceID, "connectionId", connectionID, "steps", len(stepIDs))
	return s.GetSequence(ctx, connectionID, sequenceID)
}

func sameStepSet(steps []domain.Step, ids []uuid.UUID) bool {
	if len(steps) != len(ids) {
		return false
	}
	known := make(map[uuid.UUID]bool, len(steps))
	for _, st := range steps {
		known[st.ID] = false
	}
	for _, id := range ids {
		seen, ok := known[id]
		if !ok || seen {
			return false
		}
		known[id] = true
	}
	return true
}

func alreadyEnrolled(existingID uuid.UUID) *apperr.Error {
	err := apperr.Conflict(msgAlreadyEnrolled)
	if existingID != uuid.Nil {
		err = err.WithDetails(map[string]string{"subscriptionId": existingID.String()})
	}
	return err
}
