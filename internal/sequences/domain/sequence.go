// Package domain holds the sequence engine's core types and the pure
// scheduling rules that decide what happens to a due subscription.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Subscription.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// IsOpen reports whether the processor may still advance the subscription.
func (s Status) IsOpen() bool {
	return s == StatusActive || s == StatusPending
}

// DelayUnit is the unit of a step delay.
type DelayUnit string

const (
	DelayMinutes DelayUnit = "minutes"
	DelayHours   DelayUnit = "hours"
	DelayDays    DelayUnit = "days"
)

// Sequence is an ordered drip campaign owned by one connection.
type Sequence struct {
	ID           uuid.UUID
	ConnectionID uuid.UUID
	Name         string
	IsActive     bool
	Steps        []Step
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Content is the automation content a step sends.
type Content struct {
	Message        string
	MediaObjectKey *string
}

// Step is one unit of a Sequence. OrderIndex is dense and 0-based.
type Step struct {
	ID         uuid.UUID
	SequenceID uuid.UUID
	OrderIndex int
	Content    Content
	DelayValue int
	DelayUnit  DelayUnit
	SendTime   *string
	SendDays   []string
	IsActive   bool
	SentCount  int
	ClickCount int
}

// Delay converts the step's delay value and unit into a duration.
// Unknown units are read as minutes.
func (s Step) Delay() time.Duration {
	if s.DelayValue <= 0 {
		return 0
	}
	v := time.Duration(s.DelayValue)
	switch s.DelayUnit {
	case DelayDays:
		return v * 24 * time.Hour
	case DelayHours:
		return v * time.Hour
	default:
		return v * time.Minute
	}
}

// Subscription binds a contact to a sequence. CurrentStep is an index into
// the sequence's steps ordered by OrderIndex, not a step id.
type Subscription struct {
	ID                  uuid.UUID
	SequenceID          uuid.UUID
	ContactID           uuid.UUID
	ConnectionID        uuid.UUID
	ConversationID      *uuid.UUID
	CurrentStep         int
	Status              Status
	StartedAt           time.Time
	NextStepAt          *time.Time
	CompletedAt         *time.Time
	ConsecutiveFailures int
	LastError           *string
	LastMessageID       *string
}

// Contact is the recipient data the processor needs to dispatch.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// DueSubscription is a claimed subscription together with its recipient.
type DueSubscription struct {
	Subscription
	Contact Contact
	// LeaseUntil is the next_step_at value written by the claim.
	LeaseUntil time.Time
}

// Transition is the single terminal write applied to a subscription after
// one processing attempt.
type Transition struct {
	CurrentStep         int
	Status              Status
	NextStepAt          *time.Time
	CompletedAt         *time.Time
	ConsecutiveFailures int
	LastError           *string
	LastMessageID       *string
}
