package handler

import (
	"marketplace-settlement/internal/adapter/http/dto"
	"marketplace-settlement/internal/adapter/http/middleware"
	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LedgerHandler handles direct ledger endpoints: transaction lookups and
// manual adjustments.
type LedgerHandler struct {
	ledgerSvc ports.LedgerService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(ledgerSvc ports.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerSvc: ledgerSvc}
}

// TransactionEntries handles GET /api/v1/transactions/:id/entries.
func (h *LedgerHandler) TransactionEntries(c *gin.Context) {
	transactionID := c.Param("id")
	if transactionID == "" {
		response.Error(c, apperror.Validation("transaction id is required"))
		return
	}

	entries, err := h.ledgerSvc.EntriesForTransaction(c.Request.Context(), transactionID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromEntries(entries))
}

// RecordAdjustment handles POST /api/v1/adjustments.
func (h *LedgerHandler) RecordAdjustment(c *gin.Context) {
	var req dto.AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	inputs := make([]ports.EntryInput, 0, len(req.Entries))
	for i := range req.Entries {
		e := &req.Entries[i]
		walletID, err := uuid.Parse(e.WalletID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid wallet_id in entry set"))
			return
		}
		inputs = append(inputs, ports.EntryInput{
			WalletID:    walletID,
			Amount:      e.Amount,
			Type:        domain.EntryType(e.Type),
			Description: e.Description,
		})
	}

	entries, err := h.ledgerSvc.RecordAdjustment(c.Request.Context(),
		c.GetString(middleware.CtxCallerID), req.Reason, inputs)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromEntries(entries))
}
