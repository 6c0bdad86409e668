package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sashabaranov/go-openai"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/midaslabs/reimburse/internal/ai"
	"github.com/midaslabs/reimburse/internal/config"
	"github.com/midaslabs/reimburse/internal/extract"
	httpapi "github.com/midaslabs/reimburse/internal/interfaces/http"
	"github.com/midaslabs/reimburse/internal/pipeline"
	"github.com/midaslabs/reimburse/internal/policy"
	"github.com/midaslabs/reimburse/internal/quota"
	"github.com/midaslabs/reimburse/internal/report"
	"github.com/midaslabs/reimburse/internal/repository"
	"github.com/midaslabs/reimburse/internal/storage"
	"github.com/midaslabs/reimburse/pkg/database"
	"github.com/midaslabs/reimburse/pkg/utils"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting reimbursement service", zap.Int("port", cfg.Server.Port))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	objectStore, err := storage.NewMinioStore(storage.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize object storage", zap.Error(err))
	}
	if err := objectStore.EnsureBucket(context.Background()); err != nil {
		logger.Fatal("Failed to ensure storage bucket", zap.Error(err))
	}

	quotaRepo := repository.NewQuotaRepository(db.DB, logger)
	recordRepo := repository.NewRecordRepository(db.DB, logger)
	groupRepo := repository.NewGroupRepository(db.DB, logger)
	policyRepo := repository.NewPolicyRepository(db.DB, logger)

	llmClient := openai.NewClient(cfg.OpenAI.APIKey)
	judge := ai.NewJudge(llmClient, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)
	policyExtractor := ai.NewPolicyExtractor(llmClient, cfg.OpenAI.Model, cfg.OpenAI.Temperature, logger)

	extractor := extract.NewExtractor(logger)
	expander := extract.NewExpander(extractor, logger)
	resolver := policy.NewResolver(policyRepo, objectStore, policyExtractor, logger)
	tracker := quota.NewTracker(quotaRepo, logger)
	artifacts := storage.NewArtifactStore(objectStore, logger)

	orchestrator := pipeline.NewOrchestrator(
		extractor,
		expander,
		resolver,
		judge,
		tracker,
		artifacts,
		recordRepo,
		logger,
	)

	handlers := httpapi.NewHandlers(
		orchestrator,
		groupRepo,
		recordRepo,
		policyRepo,
		objectStore,
		extractor,
		report.NewExporter(logger),
		cfg.Server.MaxUploadSize,
		logger,
	)

	server := httpapi.NewServer(cfg.Server, handlers, cfg.Auth.JWTSecret, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}
