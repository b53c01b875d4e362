package handler

import (
	"strconv"
	"time"

	"marketplace-settlement/internal/adapter/http/dto"
	"marketplace-settlement/internal/adapter/http/middleware"
	"marketplace-settlement/internal/core/domain"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WalletHandler handles wallet and per-wallet ledger endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
	ledgerSvc ports.LedgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService, ledgerSvc ports.LedgerService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc, ledgerSvc: ledgerSvc}
}

// Provision handles POST /api/v1/wallets.
func (h *WalletHandler) Provision(c *gin.Context) {
	var req dto.ProvisionWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	var owner *uuid.UUID
	if req.OwnerUserID != nil {
		id, err := uuid.Parse(*req.OwnerUserID)
		if err != nil {
			response.Error(c, apperror.Validation("invalid owner_user_id"))
			return
		}
		owner = &id
	}

	wallet, err := h.walletSvc.Provision(c.Request.Context(), ports.ProvisionWalletRequest{
		Code:        req.Code,
		Kind:        domain.WalletKind(req.Kind),
		Currency:    req.Currency,
		OwnerUserID: owner,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromWallet(wallet))
}

// Get handles GET /api/v1/wallets/:id.
func (h *WalletHandler) Get(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	wallet, err := h.walletSvc.Get(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

// Balance handles GET /api/v1/wallets/:id/balance.
func (h *WalletHandler) Balance(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	wallet, err := h.walletSvc.Get(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	balance, err := h.walletSvc.Balance(c.Request.Context(), walletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletID: walletID.String(),
		Balance:  balance.String(),
		Currency: wallet.Currency,
	})
}

// Entries handles GET /api/v1/wallets/:id/entries.
func (h *WalletHandler) Entries(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	filter, err := entryFilterFromQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, total, err := h.ledgerSvc.EntriesForWallet(c.Request.Context(), walletID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.EntryListResponse{
		Items:    dto.FromEntries(entries),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// SetStatus handles PUT /api/v1/wallets/:id/status.
func (h *WalletHandler) SetStatus(c *gin.Context) {
	walletID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.WalletStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, err := h.walletSvc.SetStatus(c.Request.Context(), walletID,
		domain.WalletStatus(req.Status), c.GetString(middleware.CtxCallerID))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.FromWallet(wallet))
}

func entryFilterFromQuery(c *gin.Context) (ports.EntryFilter, error) {
	filter := ports.EntryFilter{Page: 1, PageSize: 50}

	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return filter, apperror.Validation("invalid page")
		}
		filter.Page = page
	}
	if v := c.Query("page_size"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 || size > 500 {
			return filter, apperror.Validation("invalid page_size")
		}
		filter.PageSize = size
	}
	if v := c.Query("type"); v != "" {
		et := domain.EntryType(v)
		filter.Type = &et
	}
	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperror.Validation("invalid from timestamp")
		}
		filter.From = &from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, apperror.Validation("invalid to timestamp")
		}
		filter.To = &to
	}
	return filter, nil
}
