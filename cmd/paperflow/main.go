package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sashabaranov/go-openai"

	"github.com/paperflow/paperflow/internal/app"
	"github.com/paperflow/paperflow/internal/extract"
	"github.com/paperflow/paperflow/internal/inventory"
	"github.com/paperflow/paperflow/internal/invoices"
	"github.com/paperflow/paperflow/internal/notify"
	"github.com/paperflow/paperflow/internal/observability"
	"github.com/paperflow/paperflow/internal/platform/cache"
	"github.com/paperflow/paperflow/internal/platform/db"
	"github.com/paperflow/paperflow/internal/shared"
	"github.com/paperflow/paperflow/internal/users"
	"github.com/paperflow/paperflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, api key cache disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditRecorder := shared.NewAuditRecorder(pool, logger)

	usersRepo := users.NewRepository(pool)
	authenticator := users.NewAuthenticator(usersRepo, redisClient, logger)

	queueClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()
	dispatcher := notify.NewDispatcher(queueClient, cfg.OperatorMail, logger, metrics)

	openaiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	openaiCfg.HTTPClient = &http.Client{Timeout: cfg.OpenAITimeout}
	llm := openai.NewClientWithConfig(openaiCfg)

	extractor := extract.NewExtractor(cfg.PDFFetchTimeout, cfg.PDFMaxBytes)
	extraction := invoices.NewExtractionClient(llm, cfg.OpenAIModel, logger)

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	invoiceRepo := invoices.NewRepository(pool)
	invoiceService := invoices.NewService(
		invoiceRepo,
		extractor,
		extraction,
		inventoryService,
		dispatcher,
		auditRecorder,
		metrics,
		logger,
	)
	invoiceHandler := invoices.NewHandler(logger, invoiceService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Authenticator:    authenticator,
		InvoiceHandler:   invoiceHandler,
		InventoryHandler: inventoryHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
