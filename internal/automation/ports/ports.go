// Package ports declares what the trigger engine needs from other modules.
package ports

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrAlreadyEnrolled is returned by an Enroller when the contact already has
// an open subscription to the sequence.
var ErrAlreadyEnrolled = errors.New("contact already enrolled")

// OutboundMessage is a rule-rendered message for a contact.
type OutboundMessage struct {
	ConnectionID   uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
	Phone          string
	Text           string
}

// MessageDispatcher sends rule messages. It returns the provider message id.
type MessageDispatcher interface {
	SendMessage(ctx context.Context, msg OutboundMessage) (string, error)
}

// EnrollRequest asks for a contact to be subscribed to a sequence.
type EnrollRequest struct {
	ConnectionID   uuid.UUID
	SequenceID     uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
}

// Enroller subscribes contacts through the same path as the enrollment API.
type Enroller interface {
	Enroll(ctx context.Context, req EnrollRequest) (subscriptionID uuid.UUID, err error)
}
