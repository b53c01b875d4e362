package handler

import (
	"marketplace-settlement/internal/adapter/http/dto"
	"marketplace-settlement/internal/adapter/http/middleware"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RefundHandler handles refund lifecycle endpoints.
type RefundHandler struct {
	refundSvc ports.RefundService
}

// NewRefundHandler creates a new RefundHandler.
func NewRefundHandler(refundSvc ports.RefundService) *RefundHandler {
	return &RefundHandler{refundSvc: refundSvc}
}

// Initiate handles POST /api/v1/refunds.
func (h *RefundHandler) Initiate(c *gin.Context) {
	var req dto.InitiateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment_id"))
		return
	}

	refund, err := h.refundSvc.Initiate(c.Request.Context(), ports.InitiateRefundRequest{
		PaymentID:         paymentID,
		Amount:            req.Amount,
		Reason:            req.Reason,
		RefundPlatformFee: req.RefundPlatformFee,
		RequestedBy:       c.GetString(middleware.CtxCallerID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromRefund(refund))
}

// Approve handles POST /api/v1/refunds/:id/approve.
func (h *RefundHandler) Approve(c *gin.Context) {
	refundID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	refund, err := h.refundSvc.Approve(c.Request.Context(), refundID, c.GetString(middleware.CtxCallerID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromRefund(refund))
}

// Reject handles POST /api/v1/refunds/:id/reject.
func (h *RefundHandler) Reject(c *gin.Context) {
	refundID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.RejectRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	refund, err := h.refundSvc.Reject(c.Request.Context(), refundID, c.GetString(middleware.CtxCallerID), req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromRefund(refund))
}

// Process handles POST /api/v1/refunds/:id/process.
func (h *RefundHandler) Process(c *gin.Context) {
	refundID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	refund, err := h.refundSvc.Process(c.Request.Context(), refundID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromRefund(refund))
}

// Get handles GET /api/v1/refunds/:id.
func (h *RefundHandler) Get(c *gin.Context) {
	refundID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	refund, err := h.refundSvc.Get(c.Request.Context(), refundID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromRefund(refund))
}
