package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kbase/internal/api"
	"kbase/internal/domain/kb"
	"kbase/internal/platform/config"
	applog "kbase/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	embedder := kb.NewOpenAIEmbedder(kb.OpenAIEmbedderConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.EmbeddingModel,
		Dims:    cfg.OpenAI.EmbeddingDims,
		Timeout: cfg.KB.ExternalTimeout,
	})
	applog.Infof("✅ Embedder initialized (model: %s, dims: %d)", cfg.OpenAI.EmbeddingModel, embedder.Dims())

	completer := kb.NewOpenAICompleter(kb.OpenAICompleterConfig{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ChatModel,
		Timeout: cfg.KB.ExternalTimeout,
	})
	applog.Infof("✅ Completer initialized (model: %s)", cfg.OpenAI.ChatModel)

	engine := kb.NewEngine(&cfg.KB, embedder)
	synthesizer := kb.NewSynthesizer(engine, completer)

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.RatePerMinute = cfg.Server.RatePerMinute
	serverConfig.UploadPerMinute = cfg.Server.UploadPerMinute
	serverConfig.TrustProxy = cfg.Server.TrustProxyHeaders
	server := api.NewServer(serverConfig, engine, synthesizer)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}
