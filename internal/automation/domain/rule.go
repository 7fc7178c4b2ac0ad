package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ActionType is what a matching rule does.
type ActionType string

const (
	ActionSendMessage    ActionType = "send_message"
	ActionEnrollSequence ActionType = "enroll_sequence"
)

// Condition narrows the events a rule reacts to. Nil fields match anything.
// Stage comparisons ignore case and surrounding spaces.
type Condition struct {
	ToStage    *string
	FromStage  *string
	SequenceID *uuid.UUID
}

// Rule is a connection's trigger rule.
type Rule struct {
	ID               uuid.UUID
	ConnectionID     uuid.UUID
	Name             string
	EventType        EventType
	Condition        Condition
	Action           ActionType
	MessageTemplate  *string
	TargetSequenceID *uuid.UUID
	IsActive         bool
	CreatedAt        time.Time
}

// Matches reports whether the rule applies to e. Stage conditions never
// match a sequence event and a sequence condition never matches a funnel
// event.
func (r Rule) Matches(e Event) bool {
	if !r.IsActive || r.EventType != e.Type() || r.ConnectionID != e.About().ConnectionID {
		return false
	}

	c := r.Condition
	if t, ok := transitionOf(e); ok {
		if c.SequenceID != nil {
			return false
		}
		return stageMatches(c.ToStage, t.ToStage) && stageMatches(c.FromStage, t.FromStage)
	}

	if sc, ok := e.(SequenceCompleted); ok {
		if c.ToStage != nil || c.FromStage != nil {
			return false
		}
		return c.SequenceID == nil || *c.SequenceID == sc.SequenceID
	}
	return false
}

func stageMatches(want *string, got string) bool {
	if want == nil || strings.TrimSpace(*want) == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(*want), strings.TrimSpace(got))
}
