package handler

import (
	"context"
	"net/http"

	"zapflow_backend/internal/funnel/domain"
	"zapflow_backend/internal/funnel/service"
	"zapflow_backend/internal/funnel/transport"
	"zapflow_backend/platform/httpkit"
	"zapflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidCardID    = "invalid card ID"
)

// BoardService is the funnel service surface the handler calls.
type BoardService interface {
	MoveCard(ctx context.Context, in domain.MoveInput) (service.MoveResult, error)
	ListStage(ctx context.Context, connectionID uuid.UUID, stage string) ([]domain.Card, error)
	History(ctx context.Context, connectionID, cardID uuid.UUID) ([]domain.HistoryEntry, error)
}

// Handler handles HTTP requests for the funnel board.
type Handler struct {
	svc BoardService
	val *validator.Validator
}

// New creates a new funnel handler.
func New(svc BoardService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// MoveCard handles a drag-and-drop move.
// POST /api/v1/funnel/cards/:id/move
func (h *Handler) MoveCard(c *gin.Context) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCardID, nil)
		return
	}
	var req transport.MoveCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	res, err := h.svc.MoveCard(c.Request.Context(), domain.MoveInput{
		ConnectionID: identity.ConnectionID(),
		CardID:       cardID,
		ToStage:      req.ToStage,
		NewIndex:     *req.NewIndex,
		Notes:        req.Notes,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.MoveCardResponse{
		Card:         transport.ToCardResponse(res.Card),
		FromStage:    res.FromStage,
		ToStage:      res.ToStage,
		Position:     res.Position,
		StageChanged: res.StageChanged,
		Repositioned: res.Repositioned,
	})
}

// ListStage returns one column of the board.
// GET /api/v1/funnel/stages/:stage/cards
func (h *Handler) ListStage(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	stage := c.Param("stage")

	cards, err := h.svc.ListStage(c.Request.Context(), identity.ConnectionID(), stage)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToStageResponse(stage, cards))
}

// History returns a card's stage changes.
// GET /api/v1/funnel/cards/:id/history
func (h *Handler) History(c *gin.Context) {
	cardID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidCardID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	entries, err := h.svc.History(c.Request.Context(), identity.ConnectionID(), cardID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToHistoryResponse(entries))
}
