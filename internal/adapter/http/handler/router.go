package handler

import (
	"marketplace-settlement/internal/adapter/http/middleware"
	"marketplace-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	RefundSvc      ports.RefundService
	WithdrawalSvc  ports.WithdrawalService
	WalletSvc      ports.WalletService
	LedgerSvc      ports.LedgerService
	ValidationSvc  ports.ValidationService
	ReportingSvc   ports.ReportingService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CallerID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.RefundSvc)
	refundHandler := NewRefundHandler(deps.RefundSvc)
	withdrawalHandler := NewWithdrawalHandler(deps.WithdrawalSvc)
	walletHandler := NewWalletHandler(deps.WalletSvc, deps.LedgerSvc)
	ledgerHandler := NewLedgerHandler(deps.LedgerSvc)
	opsHandler := NewOpsHandler(deps.ValidationSvc, deps.ReportingSvc)

	v1 := r.Group("/api/v1")

	payments := v1.Group("/payments")
	{
		payments.POST("", paymentHandler.Initiate)
		payments.GET("/:id", paymentHandler.Get)
		payments.POST("/:id/authorize", paymentHandler.Authorize)
		payments.POST("/:id/capture", paymentHandler.Capture)
		payments.POST("/:id/fail", paymentHandler.Fail)
		payments.GET("/:id/refundable", paymentHandler.Refundable)
	}

	refunds := v1.Group("/refunds")
	{
		refunds.POST("", refundHandler.Initiate)
		refunds.GET("/:id", refundHandler.Get)
		refunds.POST("/:id/approve", refundHandler.Approve)
		refunds.POST("/:id/reject", refundHandler.Reject)
		refunds.POST("/:id/process", refundHandler.Process)
	}

	withdrawals := v1.Group("/withdrawals")
	{
		withdrawals.POST("", withdrawalHandler.Request)
		withdrawals.GET("/:id", withdrawalHandler.Get)
		withdrawals.POST("/:id/complete", withdrawalHandler.Complete)
		withdrawals.POST("/:id/fail", withdrawalHandler.Fail)
	}

	wallets := v1.Group("/wallets")
	{
		wallets.POST("", walletHandler.Provision)
		wallets.GET("/:id", walletHandler.Get)
		wallets.GET("/:id/balance", walletHandler.Balance)
		wallets.GET("/:id/entries", walletHandler.Entries)
		wallets.PUT("/:id/status", walletHandler.SetStatus)
	}

	v1.GET("/transactions/:id/entries", ledgerHandler.TransactionEntries)
	v1.POST("/adjustments", ledgerHandler.RecordAdjustment)

	v1.POST("/validation/run", opsHandler.RunValidation)

	exports := v1.Group("/exports")
	{
		exports.GET("/ledger", opsHandler.ExportLedger)
		exports.GET("/payouts", opsHandler.ExportPayouts)
	}

	return r
}
