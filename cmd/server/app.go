package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avvvet/skillbuddy-chat/internal/config"
	"github.com/avvvet/skillbuddy-chat/internal/handlers"
	"github.com/avvvet/skillbuddy-chat/internal/llm"
	"github.com/avvvet/skillbuddy-chat/internal/memory"
	"github.com/avvvet/skillbuddy-chat/internal/prompts"
	"github.com/avvvet/skillbuddy-chat/internal/retrieval"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg    *config.Config
	memory *memory.Manager
	chat   *handlers.ChatHandler
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("🧠 Initializing memory manager...", "backend", cfg.StoreBackend)
	memoryManager := memory.NewManager(ctx, store,
		memory.WithWindowSize(cfg.MaxContextMessages),
		memory.WithPromptTurns(cfg.PromptContextMessages),
		memory.WithRestoreContext(cfg.RestoreContext),
	)
	slog.Info("✅ Memory manager initialized", "sessions", memoryManager.GetActiveSessionCount())

	slog.Info("📚 Opening knowledge base...", "path", cfg.IndexPath, "collection", cfg.IndexCollection)
	embed, err := retrieval.NewEmbeddingFunc(cfg)
	if err != nil {
		memoryManager.Close()
		return nil, err
	}
	retriever, err := retrieval.New(cfg.IndexPath, cfg.IndexCollection, embed)
	if err != nil {
		memoryManager.Close()
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	slog.Info("✅ Knowledge base ready", "documents", retriever.Count())

	slog.Info("🤖 Initializing LLM provider...", "provider", cfg.LLMProvider, "model", cfg.LLMModel)
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		memoryManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}
	slog.Info("✅ LLM provider initialized")

	chatHandler := handlers.NewChatHandler(
		retriever,
		cfg.RetrievalK,
		prompts.NewBuilder(cfg.PassageMaxChars),
		llm.NewAnswerService(model),
		memoryManager,
	)

	return &app{cfg: cfg, memory: memoryManager, chat: chatHandler}, nil
}

func newStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		slog.Info("🔌 Connecting to Redis...", "url", cfg.RedisURL)
		store, err := memory.NewRedisStore(cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		slog.Info("✅ Redis connected")
		return store, nil
	default:
		slog.Info("💾 Using session file", "path", cfg.SessionsFile)
		return memory.NewFileStore(cfg.SessionsFile), nil
	}
}

func (a *app) Close() {
	slog.Info("📊 Final session count", "sessions", a.memory.GetActiveSessionCount())
	if err := a.memory.Close(); err != nil {
		slog.Warn("⚠️ Error closing memory manager", "err", err)
	}
}
