package service

import (
	"context"
	"testing"

	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollRejectsDuplicateOpenSubscription(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)
	contactID := h.store.addContact("Ana", "+5511912345678")
	in := EnrollInput{ConnectionID: h.connection, SequenceID: seq.ID, ContactID: contactID}

	first, err := h.svc.Enroll(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.Equal(t, 0, first.CurrentStep)
	assert.True(t, first.StartedAt.Equal(t0))

	_, err = h.svc.Enroll(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.GetKind(err))
	assert.Equal(t, 1, h.store.openCount(contactID, seq.ID))
}

func TestEnrollUnknownSequenceIsNotFound(t *testing.T) {
	h := newHarness()
	contactID := h.store.addContact("Ana", "+5511912345678")

	_, err := h.svc.Enroll(context.Background(), EnrollInput{ConnectionID: h.connection, SequenceID: uuid.New(), ContactID: contactID})
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))
}

func TestEnrollOtherConnectionsSequenceIsNotFound(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(uuid.New(), true, drip()...)
	contactID := h.store.addContact("Ana", "+5511912345678")

	_, err := h.svc.Enroll(context.Background(), EnrollInput{ConnectionID: h.connection, SequenceID: seq.ID, ContactID: contactID})
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))
}

func TestEnrollInactiveSequenceIsValidationError(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, false, drip()...)
	contactID := h.store.addContact("Ana", "+5511912345678")

	_, err := h.svc.Enroll(context.Background(), EnrollInput{ConnectionID: h.connection, SequenceID: seq.ID, ContactID: contactID})
	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))
}

func TestEnrollUnknownContactIsNotFound(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)

	_, err := h.svc.Enroll(context.Background(), EnrollInput{ConnectionID: h.connection, SequenceID: seq.ID, ContactID: uuid.New()})
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))
}

func TestEnrollmentUniquenessAcrossEnrollAndUnenroll(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)
	contactID := h.store.addContact("Ana", "+5511912345678")
	in := EnrollInput{ConnectionID: h.connection, SequenceID: seq.ID, ContactID: contactID}

	var last domain.Subscription
	for i := 0; i < 4; i++ {
		sub, err := h.svc.Enroll(context.Background(), in)
		if err == nil {
			last = sub
		}
		_, _ = h.svc.Enroll(context.Background(), in)
		assert.Equal(t, 1, h.store.openCount(contactID, seq.ID))

		cancelled, err := h.svc.Unenroll(context.Background(), h.connection, last.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CompletedAt)
		assert.Equal(t, 0, h.store.openCount(contactID, seq.ID))
	}
}

func TestUnenrollTerminalSubscriptionIsConflict(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)
	sub := h.enroll(t, seq, "Ana", "+5511912345678")

	_, err := h.svc.Unenroll(context.Background(), h.connection, sub.ID)
	require.NoError(t, err)

	_, err = h.svc.Unenroll(context.Background(), h.connection, sub.ID)
	assert.Equal(t, apperr.KindConflict, apperr.GetKind(err))

	_, err = h.svc.Unenroll(context.Background(), h.connection, uuid.New())
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))
}

func TestCancelledSubscriptionIsNeverProcessed(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)
	sub := h.enroll(t, seq, "Ana", "+5511912345678")
	_, err := h.svc.Unenroll(context.Background(), h.connection, sub.ID)
	require.NoError(t, err)

	summary, err := h.processor(ProcessorConfig{}).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Processed)
	assert.Zero(t, h.dispatcher.count())
}

func TestReorderStepsRedirectsInFlightSubscriptionsByIndex(t *testing.T) {
	h := newHarness()
	steps := []domain.Step{
		{IsActive: true, Content: domain.Content{Message: "first"}},
		{IsActive: true, Content: domain.Content{Message: "second"}},
		{IsActive: true, Content: domain.Content{Message: "third"}},
	}
	seq := h.store.addSequence(h.connection, true, steps...)
	sub := h.enroll(t, seq, "Ana", "+5511912345678")

	proc := h.processor(ProcessorConfig{})
	_, err := proc.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, h.store.sub(sub.ID).CurrentStep)

	reordered, err := h.svc.ReorderSteps(context.Background(), h.connection, seq.ID,
		[]uuid.UUID{seq.Steps[0].ID, seq.Steps[2].ID, seq.Steps[1].ID})
	require.NoError(t, err)
	require.Len(t, reordered.Steps, 3)
	for i, st := range reordered.Steps {
		assert.Equal(t, i, st.OrderIndex)
	}

	_, err = proc.ProcessPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, h.dispatcher.count())
	assert.Equal(t, "third", h.dispatcher.sent[1].Text)
}

func TestReorderStepsRejectsIncompleteList(t *testing.T) {
	h := newHarness()
	seq := h.store.addSequence(h.connection, true, drip()...)

	_, err := h.svc.ReorderSteps(context.Background(), h.connection, seq.ID, []uuid.UUID{seq.Steps[0].ID})
	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))

	_, err = h.svc.ReorderSteps(context.Background(), h.connection, seq.ID, []uuid.UUID{seq.Steps[0].ID, seq.Steps[0].ID})
	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))
}
