package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leadflowhq/leadflow/internal/api"
	"github.com/leadflowhq/leadflow/internal/assistant"
	"github.com/leadflowhq/leadflow/internal/conversation"
	"github.com/leadflowhq/leadflow/internal/identity"
	"github.com/leadflowhq/leadflow/internal/storage"
	"github.com/leadflowhq/leadflow/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Wire the conversation core
	client := assistant.NewOpenAIClient(assistant.StaticTokenSource(cfg.OpenAI.APIKey))
	orch := assistant.NewOrchestrator(client, cfg.OpenAI.PollInterval, cfg.OpenAI.RunTimeout, logger)
	resolver := identity.NewResolver(store, logger)
	manager := conversation.NewManager(store, client, conversation.AssistantProfile{
		Name:         cfg.OpenAI.AssistantName,
		Instructions: cfg.OpenAI.AssistantInstructions,
		Model:        cfg.OpenAI.Model,
	}, logger)
	svc := conversation.NewService(resolver, store, manager, orch, logger)

	verifier := identity.NewJWTVerifier(cfg.Auth.JWTSecret)
	router := api.NewRouter(svc, verifier, logger)

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
		// SendMessage blocks through run polling; keep the write timeout
		// above the run timeout so responses are not cut off mid-run.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.OpenAI.RunTimeout + time.Minute,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
}
