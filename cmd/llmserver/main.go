package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/avatar-call/backend/internal/config"
	"github.com/zhouzirui/avatar-call/backend/internal/handler"
	"github.com/zhouzirui/avatar-call/backend/internal/metrics"
	"github.com/zhouzirui/avatar-call/backend/internal/model/knowledge"
	"github.com/zhouzirui/avatar-call/backend/internal/server"
	"github.com/zhouzirui/avatar-call/backend/internal/service/llm"
	"github.com/zhouzirui/avatar-call/backend/internal/service/tools"
	"github.com/zhouzirui/avatar-call/backend/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New(false).Fatalw("failed to load configuration", "error", err)
	}

	log := logger.New(cfg.Debug)
	defer log.Sync()
	if envErr != nil {
		log.Infow("no .env file loaded, using process environment only", "error", envErr)
	}

	kb, err := knowledge.Load(cfg.LLM.KnowledgeFile)
	if err != nil {
		log.Fatalw("failed to load knowledge base", "file", cfg.LLM.KnowledgeFile, "error", err)
	}

	var backend llm.Backend
	switch cfg.LLM.Provider {
	case "ark":
		backend, err = llm.NewArkBackend(ctx, cfg.AI)
		if err != nil {
			log.Fatalw("failed to initialize ark backend", "error", err)
		}
	default:
		if cfg.LLM.OpenAIAPIKey == "" {
			log.Warnw("OPENAI_API_KEY not set, upstream calls will fail")
		}
		backend = llm.NewOpenAIBackend(cfg.LLM)
	}

	m := metrics.New("")
	registry := tools.NewRegistry(kb, m, log)
	completer := llm.NewService(backend, kb, registry, cfg.LLM.MaxToolRounds, m, log)

	log.Infow("custom llm server ready", "provider", backend.Name(), "max_tool_rounds", cfg.LLM.MaxToolRounds)

	srv := server.New(cfg.LLM.Server.Addr, handler.NewLLMRouter(completer, cfg.LLM.Server.AllowedOrigins, m, log))
	if err := server.Run(ctx, srv, log, nil); err != nil {
		log.Fatalw("server error", "error", err)
	}
}
