// Package domain defines trigger events, rules and their evaluation.
package domain

import (
	"github.com/google/uuid"
)

// EventType is the trigger a rule listens to.
type EventType string

const (
	EventFunnelStageChanged EventType = "funnel_stage_changed"
	EventDealWon            EventType = "deal_won"
	EventDealLost           EventType = "deal_lost"
	EventSequenceCompleted  EventType = "sequence_completed"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventFunnelStageChanged, EventDealWon, EventDealLost, EventSequenceCompleted:
		return true
	}
	return false
}

// Subject is the contact an event is about.
type Subject struct {
	ConnectionID   uuid.UUID  `json:"connectionId"`
	ContactID      uuid.UUID  `json:"contactId"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Name           string     `json:"name"`
	Phone          string     `json:"phone"`
	Email          string     `json:"email,omitempty"`
}

// About returns the subject; every event embeds Subject.
func (s Subject) About() Subject { return s }

// Event is a closed set of trigger events: StageChanged, DealWon, DealLost
// and SequenceCompleted.
type Event interface {
	Type() EventType
	About() Subject
	sealed()
}

// StageTransition is the stage data shared by funnel events.
type StageTransition struct {
	CardID    uuid.UUID `json:"cardId"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
}

type StageChanged struct {
	Subject
	StageTransition
}

type DealWon struct {
	Subject
	StageTransition
}

type DealLost struct {
	Subject
	StageTransition
}

type SequenceCompleted struct {
	Subject
	SequenceID     uuid.UUID `json:"sequenceId"`
	SubscriptionID uuid.UUID `json:"subscriptionId"`
}

func (StageChanged) Type() EventType      { return EventFunnelStageChanged }
func (DealWon) Type() EventType           { return EventDealWon }
func (DealLost) Type() EventType          { return EventDealLost }
func (SequenceCompleted) Type() EventType { return EventSequenceCompleted }

func (StageChanged) sealed()      {}
func (DealWon) sealed()           {}
func (DealLost) sealed()          {}
func (SequenceCompleted) sealed() {}

// transitionOf returns the stage data of funnel events.
func transitionOf(e Event) (StageTransition, bool) {
	switch ev := e.(type) {
	case StageChanged:
		return ev.StageTransition, true
	case DealWon:
		return ev.StageTransition, true
	case DealLost:
		return ev.StageTransition, true
	}
	return StageTransition{}, false
}

// Variables returns the template variables available to send_message rules.
func Variables(e Event) map[string]string {
	s := e.About()
	vars := map[string]string{
		"name":  s.Name,
		"phone": s.Phone,
		"email": s.Email,
		"event": string(e.Type()),
	}
	if t, ok := transitionOf(e); ok {
		vars["from_stage"] = t.FromStage
		vars["to_stage"] = t.ToStage
		vars["stage"] = t.ToStage
	}
	return vars
}
