package handler

import (
	"marketplace-settlement/internal/adapter/http/dto"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles payment lifecycle endpoints.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
	refundSvc  ports.RefundService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService, refundSvc ports.RefundService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, refundSvc: refundSvc}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payerID, err := uuid.Parse(req.PayerWalletID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payer_wallet_id"))
		return
	}
	payeeID, err := uuid.Parse(req.PayeeWalletID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid payee_wallet_id"))
		return
	}

	payment, err := h.paymentSvc.Initiate(c.Request.Context(), ports.InitiatePaymentRequest{
		OrderID:            req.OrderID,
		PayerWalletID:      payerID,
		PayeeWalletID:      payeeID,
		Amount:             req.Amount,
		Method:             req.Method,
		PlatformFeePercent: req.PlatformFeePercent,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromPayment(payment))
}

// Authorize handles POST /api/v1/payments/:id/authorize.
func (h *PaymentHandler) Authorize(c *gin.Context) {
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.ExternalRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.paymentSvc.Authorize(c.Request.Context(), paymentID, req.ExternalRef)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(payment))
}

// Capture handles POST /api/v1/payments/:id/capture.
func (h *PaymentHandler) Capture(c *gin.Context) {
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.ExternalRefRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.paymentSvc.Capture(c.Request.Context(), paymentID, req.ExternalRef)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(payment))
}

// Fail handles POST /api/v1/payments/:id/fail.
func (h *PaymentHandler) Fail(c *gin.Context) {
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	payment, err := h.paymentSvc.MarkFailed(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(payment))
}

// Get handles GET /api/v1/payments/:id.
func (h *PaymentHandler) Get(c *gin.Context) {
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	payment, err := h.paymentSvc.Get(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromPayment(payment))
}

// Refundable handles GET /api/v1/payments/:id/refundable.
func (h *PaymentHandler) Refundable(c *gin.Context) {
	paymentID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	ref, err := h.refundSvc.CheckRefundable(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.RefundabilityResponse{
		Refundable: ref.Refundable,
		Remaining:  ref.Remaining.String(),
		Reason:     ref.Reason,
	})
}

// pathUUID parses a UUID path parameter, writing a validation error on
// failure.
func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Error(c, apperror.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
