package adapters

import (
	"context"

	"github.com/google/uuid"

	autoports "zapflow_backend/internal/automation/ports"
	seqdomain "zapflow_backend/internal/sequences/domain"
	seqsvc "zapflow_backend/internal/sequences/service"
	"zapflow_backend/platform/apperr"
)

// SequenceEnrollService is the enrollment operation trigger rules reuse.
type SequenceEnrollService interface {
	Enroll(ctx context.Context, in seqsvc.EnrollInput) (seqdomain.Subscription, error)
}

// SequenceEnroller lets automation rules enroll contacts using the same
// path as the HTTP endpoint.
type SequenceEnroller struct {
	svc SequenceEnrollService
}

func NewSequenceEnroller(svc SequenceEnrollService) *SequenceEnroller {
	return &SequenceEnroller{svc: svc}
}

// Enroll maps a duplicate enrollment to autoports.ErrAlreadyEnrolled so the
// engine can report it as skipped.
func (e *SequenceEnroller) Enroll(ctx context.Context, req autoports.EnrollRequest) (uuid.UUID, error) {
	sub, err := e.svc.Enroll(ctx, seqsvc.EnrollInput{
		ConnectionID:   req.ConnectionID,
		SequenceID:     req.SequenceID,
		ContactID:      req.ContactID,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return uuid.Nil, autoports.ErrAlreadyEnrolled
		}
		return uuid.Nil, err
	}
	return sub.ID, nil
}

var _ autoports.Enroller = (*SequenceEnroller)(nil)
