package handler

import (
	"net/http"
	"time"

	"marketplace-settlement/internal/adapter/http/dto"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/pkg/apperror"
	"marketplace-settlement/pkg/response"

	"github.com/gin-gonic/gin"
)

// OpsHandler handles reconciliation runs, exports, and health checks.
type OpsHandler struct {
	validationSvc ports.ValidationService
	reportingSvc  ports.ReportingService
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(validationSvc ports.ValidationService, reportingSvc ports.ReportingService) *OpsHandler {
	return &OpsHandler{validationSvc: validationSvc, reportingSvc: reportingSvc}
}

// RunValidation handles POST /api/v1/validation/run.
func (h *OpsHandler) RunValidation(c *gin.Context) {
	var req dto.WindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if !req.To.After(req.From) {
		response.Error(c, apperror.Validation("window end must be after window start"))
		return
	}

	report, err := h.validationSvc.Run(c.Request.Context(), ports.EntryWindow{From: req.From, To: req.To})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, report)
}

// ExportLedger handles GET /api/v1/exports/ledger.
func (h *OpsHandler) ExportLedger(c *gin.Context) {
	window, ok := exportWindow(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="ledger.csv"`)
	if err := h.reportingSvc.ExportLedger(c.Request.Context(), c.Writer, window); err != nil {
		// Headers may already be written; log-and-abort is all that is left.
		_ = c.Error(err)
	}
}

// ExportPayouts handles GET /api/v1/exports/payouts.
func (h *OpsHandler) ExportPayouts(c *gin.Context) {
	window, ok := exportWindow(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="payouts.csv"`)
	if err := h.reportingSvc.ExportPayouts(c.Request.Context(), c.Writer, window); err != nil {
		_ = c.Error(err)
	}
}

func exportWindow(c *gin.Context) (ports.EntryWindow, bool) {
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid or missing from timestamp"))
		return ports.EntryWindow{}, false
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid or missing to timestamp"))
		return ports.EntryWindow{}, false
	}
	if !to.After(from) {
		response.Error(c, apperror.Validation("window end must be after window start"))
		return ports.EntryWindow{}, false
	}
	return ports.EntryWindow{From: from, To: to}, true
}

// HealthCheck handles GET /health, verifying every registered dependency.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}

		deps := make(map[string]depStatus)
		allHealthy := true

		for _, checker := range checkers {
			if err := checker.Ping(c.Request.Context()); err != nil {
				deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
				allHealthy = false
			} else {
				deps[checker.Name()] = depStatus{Status: "healthy"}
			}
		}

		status := "healthy"
		httpCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			httpCode = http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
