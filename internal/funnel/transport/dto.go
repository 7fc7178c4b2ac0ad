package transport

import (
	"time"

	"zapflow_backend/internal/funnel/domain"

	"github.com/google/uuid"
)

// MoveCardRequest is a drag-and-drop move. NewIndex is clamped server-side.
type MoveCardRequest struct {
	ToStage  string  `json:"toStage" validate:"required,notblank,max=100"`
	NewIndex *int    `json:"newIndex" validate:"required"`
	Notes    *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// CardResponse represents a funnel card in API responses.
type CardResponse struct {
	ID             uuid.UUID  `json:"id"`
	ContactID      uuid.UUID  `json:"contactId"`
	ConversationID *uuid.UUID `json:"conversationId,omitempty"`
	Title          string     `json:"title"`
	Stage          string     `json:"stage"`
	Position       *int       `json:"position"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ContactName    string     `json:"contactName"`
}

// MoveCardResponse reports the result of a move.
type MoveCardResponse struct {
	Card         CardResponse `json:"card"`
	FromStage    string       `json:"fromStage"`
	ToStage      string       `json:"toStage"`
	Position     int          `json:"position"`
	StageChanged bool         `json:"stageChanged"`
	Repositioned int          `json:"repositioned"`
}

// StageResponse is one board column.
type StageResponse struct {
	Stage string         `json:"stage"`
	Items []CardResponse `json:"items"`
	Total int            `json:"total"`
}

// HistoryEntryResponse is one stage change.
type HistoryEntryResponse struct {
	ID        uuid.UUID `json:"id"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func ToCardResponse(c domain.Card) CardResponse {
	return CardResponse{
		ID:             c.ID,
		ContactID:      c.ContactID,
		ConversationID: c.ConversationID,
		Title:          c.Title,
		Stage:          c.Stage,
		Position:       c.Position,
		LastActivityAt: c.LastActivityAt,
		ContactName:    c.ContactName,
	}
}

func ToStageResponse(stage string, cards []domain.Card) StageResponse {
	items := make([]CardResponse, 0, len(cards))
	for _, c := range cards {
		items = append(items, ToCardResponse(c))
	}
	return StageResponse{Stage: stage, Items: items, Total: len(items)}
}

func ToHistoryResponse(entries []domain.HistoryEntry) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for _, h := range entries {
		out = append(out, HistoryEntryResponse{
			ID:        h.ID,
			FromStage: h.FromStage,
			ToStage:   h.ToStage,
			Notes:     h.Notes,
			CreatedAt: h.CreatedAt,
		})
	}
	return out
}
