// Package ports declares what the sequences module needs from the rest of
// the system. Adapters in internal/adapters satisfy these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OutboundMessage is one step message addressed to a contact.
type OutboundMessage struct {
	ConnectionID   uuid.UUID
	ContactID      uuid.UUID
	ConversationID *uuid.UUID
	Phone          string
	Text           string
	MediaURL       string
}

// DispatchResult identifies the message at the provider.
type DispatchResult struct {
	ProviderMessageID string
}

// MessageDispatcher sends a single outbound message.
type MessageDispatcher interface {
	Send(ctx context.Context, msg OutboundMessage) (DispatchResult, error)
}

// MediaResolver turns a stored media object key into a fetchable URL.
type MediaResolver interface {
	ResolveURL(ctx context.Context, objectKey string) (string, error)
}

// FailureAlert describes a subscription that keeps failing to dispatch.
type FailureAlert struct {
	SubscriptionID      uuid.UUID
	SequenceID          uuid.UUID
	ConnectionID        uuid.UUID
	ContactID           uuid.UUID
	CurrentStep         int
	ConsecutiveFailures int
	LastError           string
}

// FailureAlerter notifies operators about repeated dispatch failures.
type FailureAlerter interface {
	SubscriptionFailing(ctx context.Context, alert FailureAlert) error
}

// RunLock prevents redundant concurrent processor runs. Correctness never
// depends on it; the claim and conditional writes already serialize work.
type RunLock interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (release func(context.Context), acquired bool, err error)
}
