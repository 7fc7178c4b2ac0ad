package handler

import (
	"context"
	"net/http"
	"time"

	"zapflow_backend/internal/sequences/domain"
	"zapflow_backend/internal/sequences/service"
	"zapflow_backend/internal/sequences/transport"
	"zapflow_backend/platform/httpkit"
	"zapflow_backend/platform/logger"
	"zapflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest      = "invalid request"
	msgValidationFailed    = "validation failed"
	msgInvalidSequenceID   = "invalid sequence ID"
	msgInvalidSubscription = "invalid subscription ID"
	msgProcessFailed       = "failed to process pending subscriptions"
)

// SequenceService is the part of the service layer the handler drives.
type SequenceService interface {
	Enroll(ctx context.Context, in service.EnrollInput) (domain.Subscription, error)
	Unenroll(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error)
	GetSequence(ctx context.Context, connectionID, sequenceID uuid.UUID) (domain.Sequence, error)
	GetSubscription(ctx context.Context, connectionID, subscriptionID uuid.UUID) (domain.Subscription, error)
	ListSubscriptions(ctx context.Context, connectionID, sequenceID uuid.UUID) ([]domain.Subscription, error)
	ReorderSteps(ctx context.Context, connectionID, sequenceID uuid.UUID, stepIDs []uuid.UUID) (domain.Sequence, error)
}

// PendingProcessor runs one processor pass.
type PendingProcessor interface {
	ProcessPending(ctx context.Context) (service.Summary, error)
}

// Handler handles HTTP requests for sequences and subscriptions.
type Handler struct {
	svc        SequenceService
	processor  PendingProcessor
	val        *validator.Validator
	log        *logger.Logger
	runTimeout time.Duration
}

// New creates a new sequences handler. runTimeout caps one triggered
// processor run and should exceed the processor's run budget.
func New(svc SequenceService, processor PendingProcessor, val *validator.Validator, log *logger.Logger, runTimeout time.Duration) *Handler {
	return &Handler{svc: svc, processor: processor, val: val, log: log, runTimeout: runTimeout}
}

// Enroll subscribes a contact to a sequence.
// POST /api/v1/sequences/:id/enroll
func (h *Handler) Enroll(c *gin.Context) {
	sequenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSequenceID, nil)
		return
	}
	var req transport.EnrollRequest
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

	sub, err := h.svc.Enroll(c.Request.Context(), service.EnrollInput{
		ConnectionID:   identity.ConnectionID(),
		SequenceID:     sequenceID,
		ContactID:      req.ContactID,
		ConversationID: req.ConversationID,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToSubscriptionResponse(sub))
}

// GetSequence returns a sequence with its ordered steps.
// GET /api/v1/sequences/:id
func (h *Handler) GetSequence(c *gin.Context) {
	sequenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSequenceID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	seq, err := h.svc.GetSequence(c.Request.Context(), identity.ConnectionID(), sequenceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSequenceResponse(seq))
}

// ListSubscriptions lists a sequence's subscriptions.
// GET /api/v1/sequences/:id/subscriptions
func (h *Handler) ListSubscriptions(c *gin.Context) {
	sequenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSequenceID, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	subs, err := h.svc.ListSubscriptions(c.Request.Context(), identity.ConnectionID(), sequenceID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSubscriptionListResponse(subs))
}

// ReorderSteps rewrites the order of a sequence's steps.
// PUT /api/v1/sequences/:id/steps/order
func (h *Handler) ReorderSteps(c *gin.Context) {
	sequenceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSequenceID, nil)
		return
	}
	var req transport.ReorderStepsRequest
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

	seq, err := h.svc.ReorderSteps(c.Request.Context(), identity.ConnectionID(), sequenceID, req.StepIDs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSequenceResponse(seq))
}

// GetSubscription returns one subscription.
// GET /api/v1/subscriptions/:id
func (h *Handler) GetSubscription(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSubscription, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	sub, err := h.svc.GetSubscription(c.Request.Context(), identity.ConnectionID(), subscriptionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSubscriptionResponse(sub))
}

// Cancel unenrolls a contact.
// POST /api/v1/subscriptions/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	subscriptionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSubscription, nil)
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	sub, err := h.svc.Unenroll(c.Request.Context(), identity.ConnectionID(), subscriptionID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSubscriptionResponse(sub))
}

// ProcessPending runs one processor pass on behalf of the external scheduler.
// The run is detached from the caller's connection so a dropped request
// cannot interrupt in-flight writes.
// POST /api/v1/internal/sequences/process
func (h *Handler) ProcessPending(c *gin.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.runTimeout)
	defer cancel()

	summary, err := h.processor.ProcessPending(ctx)
	if err != nil {
		h.log.Error("sequence processor run failed", "error", err)
		httpkit.Error(c, http.StatusInternalServerError, msgProcessFailed, nil)
		return
	}
	httpkit.OK(c, summary)
}
