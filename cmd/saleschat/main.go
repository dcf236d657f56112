package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"saleschat/internal/api"
	"saleschat/internal/api/handlers"
	"saleschat/internal/repository"
	"saleschat/internal/service"
	"saleschat/internal/tools"
	"saleschat/pkg/auth"
	"saleschat/pkg/config"
	"saleschat/pkg/logger"
	"saleschat/pkg/postgres"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	if err := logger.Init(cfg.Logger.Level); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	saleRepo := repository.NewSaleRepository(pool, log)
	vectorRepo := repository.NewVectorRepository(pool, log)
	chatRepo := repository.NewChatRepository(pool, log)

	llm, err := service.NewLLMService(&cfg.LLM, &cfg.GigaChat, log)
	if err != nil {
		log.Fatal("Failed to create model clients", zap.Error(err))
	}
	defer llm.Close()

	embedder := service.NewEmbeddingService(&cfg.LLM, log)
	aggregator := service.NewAggregationService(saleRepo, log)
	retriever := service.NewRetrievalService(
		embedder, vectorRepo, saleRepo, aggregator,
		cfg.RAG.DistanceThreshold, cfg.RAG.TopK, log,
	)

	registry := tools.NewRegistry(llm, log)
	service.RegisterSalesTools(registry, aggregator, retriever)

	chatService := service.NewChatService(chatRepo, llm, registry, retriever, log)
	ingestService := service.NewIngestService(saleRepo, vectorRepo, embedder, cfg.RAG.EmbedBatchSize, log)

	jwtManager := auth.NewJWTManager(cfg.Auth.SecretKey, cfg.Auth.Expiration)

	app := api.NewRouter(
		handlers.NewChatHandler(chatService, log),
		handlers.NewSalesHandler(ingestService, log),
		jwtManager,
		log,
	)

	go func() {
		log.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal("Server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	if err := app.Shutdown(); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
