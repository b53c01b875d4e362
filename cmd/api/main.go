package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace-settlement/config"
	httpHandler "marketplace-settlement/internal/adapter/http/handler"
	pgStorage "marketplace-settlement/internal/adapter/storage/postgres"
	redisStorage "marketplace-settlement/internal/adapter/storage/redis"
	"marketplace-settlement/internal/core/ports"
	"marketplace-settlement/internal/service"
	"marketplace-settlement/pkg/logger"
	"marketplace-settlement/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Str("currency", cfg.Settlement.Currency).
		Msg("Starting Marketplace Settlement")

	platformFee, err := cfg.Settlement.PlatformFee()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid platform fee percent")
	}
	withdrawalFee, err := cfg.Settlement.WithdrawalFee()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid withdrawal fee percent")
	}

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	refundRepo := pgStorage.NewRefundRepo(pool)
	withdrawalRepo := pgStorage.NewWithdrawalRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)

	m := metrics.New()

	// Initialize services
	ledgerSvc := service.NewLedgerService(ledgerRepo, walletRepo, idempotencyRepo, transactor,
		m, cfg.Settlement.MinorUnitExponent, log)
	walletSvc := service.NewWalletService(walletRepo, ledgerRepo, log)
	paymentSvc := service.NewPaymentService(paymentRepo, walletRepo, ledgerRepo, idempotencyCache,
		transactor, m, platformFee, cfg.Settlement.PlatformWalletCode,
		cfg.Settlement.MinorUnitExponent, cfg.Settlement.IdempotencyCacheTTL, log)
	refundSvc := service.NewRefundService(refundRepo, paymentRepo, walletRepo, ledgerRepo,
		idempotencyCache, transactor, m, cfg.Settlement.PlatformWalletCode,
		cfg.Settlement.MinorUnitExponent, cfg.Settlement.IdempotencyCacheTTL, log)
	withdrawalSvc := service.NewWithdrawalService(withdrawalRepo, walletRepo, ledgerRepo, transactor,
		m, withdrawalFee, cfg.Settlement.PlatformWalletCode, cfg.Settlement.EscrowWalletCode,
		cfg.Settlement.MinorUnitExponent, log)
	validationSvc := service.NewValidationService(ledgerRepo, walletRepo, paymentRepo, refundRepo,
		withdrawalRepo, m, log)
	reportingSvc := service.NewReportingService(ledgerRepo, withdrawalRepo, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:     paymentSvc,
		RefundSvc:      refundSvc,
		WithdrawalSvc:  withdrawalSvc,
		WalletSvc:      walletSvc,
		LedgerSvc:      ledgerSvc,
		ValidationSvc:  validationSvc,
		ReportingSvc:   reportingSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
