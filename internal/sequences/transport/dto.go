package transport

import (
	"time"

	"zapflow_backend/internal/sequences/domain"

	"github.com/google/uuid"
)

// EnrollRequest enrolls a contact into a sequence.
type EnrollRequest struct {
	ContactID      uuid.UUID  `json:"contactId" validate:"required"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
}

// ReorderStepsRequest is the complete new order of a sequence's steps.
type ReorderStepsRequest struct {
	StepIDs []uuid.UUID `json:"stepIds" validate:"required,min=1,dive,required"`
}

// StepResponse represents a sequence step in API responses.
type StepResponse struct {
	ID             uuid.UUID `json:"id"`
	OrderIndex     int       `json:"orderIndex"`
	Message        string    `json:"message"`
	MediaObjectKey *string   `json:"mediaObjectKey,omitempty"`
	DelayValue     int       `json:"delayValue"`
	DelayUnit      string    `json:"delayUnit"`
	SendTime       *string   `json:"sendTime,omitempty"`
	SendDays       []string  `json:"sendDays"`
	IsActive       bool      `json:"isActive"`
	SentCount      int       `json:"sentCount"`
	ClickCount     int       `json:"clickCount"`
}

// SequenceResponse represents a sequence with its ordered steps.
type SequenceResponse struct {
	ID        uuid.UUID      `json:"id"`
	Name      string         `json:"name"`
	IsActive  bool           `json:"isActive"`
	Steps     []StepResponse `json:"steps"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SubscriptionResponse represents a subscription in API responses.
type SubscriptionResponse struct {
	ID                  uuid.UUID  `json:"id"`
	SequenceID          uuid.UUID  `json:"sequenceId"`
	ContactID           uuid.UUID  `json:"contactId"`
	ConversationID      *uuid.UUID `json:"conversationId,omitempty"`
	CurrentStep         int        `json:"currentStep"`
	Status              string     `json:"status"`
	StartedAt           time.Time  `json:"startedAt"`
	NextStepAt          *time.Time `json:"nextStepAt,omitempty"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           *string    `json:"lastError,omitempty"`
}

// SubscriptionListResponse wraps a list of subscriptions.
type SubscriptionListResponse struct {
	Items []SubscriptionResponse `json:"items"`
	Total int                    `json:"total"`
}

// ToSequenceResponse maps a domain sequence to its API shape.
func ToSequenceResponse(seq domain.Sequence) SequenceResponse {
	steps := make([]StepResponse, 0, len(seq.Steps))
	for _, st := range seq.Steps {
		days := st.SendDays
		if days == nil {
			days = []string{}
		}
		steps = append(steps, StepResponse{
			ID:             st.ID,
			OrderIndex:     st.OrderIndex,
			Message:        st.Content.Message,
			MediaObjectKey: st.Content.MediaObjectKey,
			DelayValue:     st.DelayValue,
			DelayUnit:      string(st.DelayUnit),
			SendTime:       st.SendTime,
			SendDays:       days,
			IsActive:       st.IsActive,
			SentCount:      st.SentCount,
			ClickCount:     st.ClickCount,
		})
	}
	return SequenceResponse{
		ID:        seq.ID,
		Name:      seq.Name,
		IsActive:  seq.IsActive,
		Steps:     steps,
		CreatedAt: seq.CreatedAt,
		UpdatedAt: seq.UpdatedAt,
	}
}

// ToSubscriptionResponse maps a domain subscription to its API shape.
func ToSubscriptionResponse(sub domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                  sub.ID,
		SequenceID:          sub.SequenceID,
		ContactID:           sub.ContactID,
		ConversationID:      sub.ConversationID,
		CurrentStep:         sub.CurrentStep,
		Status:              string(sub.Status),
		StartedAt:           sub.StartedAt,
		NextStepAt:          sub.NextStepAt,
		CompletedAt:         sub.CompletedAt,
		ConsecutiveFailures: sub.ConsecutiveFailures,
		LastError:           sub.LastError,
	}
}

// ToSubscriptionListResponse maps a slice of subscriptions.
func ToSubscriptionListResponse(subs []domain.Subscription) SubscriptionListResponse {
	items := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		items = append(items, ToSubscriptionResponse(sub))
	}
	return SubscriptionListResponse{Items: items, Total: len(items)}
}
