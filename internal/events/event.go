// Package events defines the domain events exchanged between the funnel,
// sequences and automation contexts. The bus itself lives in
// platform/events; its types are aliased here so modules import one package.
package events

import (
	platformevents "zapflow_backend/platform/events"
	"zapflow_backend/platform/logger"

	"github.com/google/uuid"
)

type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Publisher   = platformevents.Publisher
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

var NewBaseEvent = platformevents.NewBaseEvent

func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// Contact identifies who a funnel or sequence event is about.
type Contact struct {
	ConnectionID   uuid.UUID  `json:"connectionId"`
	ContactID      uuid.UUID  `json:"contactId"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email,omitempty"`
}

// FunnelStageChanged is published after a card moved to a different stage.
type FunnelStageChanged struct {
	BaseEvent
	Contact
	CardID    uuid.UUID `json:"cardId"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
}

func (e FunnelStageChanged) EventName() string { return "funnel.card.stage_changed" }

// DealWon is published when a card lands on a won stage.
type DealWon struct {
	BaseEvent
	Contact
	CardID    uuid.UUID `json:"cardId"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
}

func (e DealWon) EventName() string { return "funnel.deal.won" }

// DealLost is published when a card lands on a lost stage.
type DealLost struct {
	BaseEvent
	Contact
	CardID    uuid.UUID `json:"cardId"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
}

func (e DealLost) EventName() string { return "funnel.deal.lost" }

// SequenceCompleted is published when a subscription finished its last step.
type SequenceCompleted struct {
	BaseEvent
	Contact
	SequenceID     uuid.UUID `json:"sequenceId"`
	SubscriptionID uuid.UUID `json:"subscriptionId"`
}

func (e SequenceCompleted) EventName() string { return "sequences.subscription.completed" }
