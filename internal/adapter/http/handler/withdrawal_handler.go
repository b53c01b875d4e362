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

// WithdrawalHandler handles payout endpoints.
type WithdrawalHandler struct {
	withdrawalSvc ports.WithdrawalService
}

// NewWithdrawalHandler creates a new WithdrawalHandler.
func NewWithdrawalHandler(withdrawalSvc ports.WithdrawalService) *WithdrawalHandler {
	return &WithdrawalHandler{withdrawalSvc: withdrawalSvc}
}

// Request handles POST /api/v1/withdrawals.
func (h *WithdrawalHandler) Request(c *gin.Context) {
	var req dto.RequestWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	walletID, err := uuid.Parse(req.WalletID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid wallet_id"))
		return
	}

	withdrawal, err := h.withdrawalSvc.Request(c.Request.Context(), ports.RequestWithdrawalRequest{
		WalletID:    walletID,
		Amount:      req.Amount,
		Destination: req.Destination,
		RequestedBy: c.GetString(middleware.CtxCallerID),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWithdrawal(withdrawal))
}

// Complete handles POST /api/v1/withdrawals/:id/complete.
func (h *WithdrawalHandler) Complete(c *gin.Context) {
	withdrawalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawalSvc.Complete(c.Request.Context(), withdrawalID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWithdrawal(withdrawal))
}

// Fail handles POST /api/v1/withdrawals/:id/fail.
func (h *WithdrawalHandler) Fail(c *gin.Context) {
	withdrawalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.FailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	withdrawal, err := h.withdrawalSvc.MarkFailed(c.Request.Context(), withdrawalID, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWithdrawal(withdrawal))
}

// Get handles GET /api/v1/withdrawals/:id.
func (h *WithdrawalHandler) Get(c *gin.Context) {
	withdrawalID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawalSvc.Get(c.Request.Context(), withdrawalID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWithdrawal(withdrawal))
}
