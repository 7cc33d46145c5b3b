package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stationai/npc-engine/internal/config"
	"github.com/stationai/npc-engine/internal/handlers"
	"github.com/stationai/npc-engine/internal/history"
	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/internal/logger"
	"github.com/stationai/npc-engine/internal/middleware"
	"github.com/stationai/npc-engine/internal/persona"
	"github.com/stationai/npc-engine/internal/processor"
	"github.com/stationai/npc-engine/pkg/npc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting NPC Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"local_enabled", cfg.Local.Enabled,
		"hosted_enabled", cfg.Hosted.Enabled)

	embedder := knowledge.NewOllamaEmbedder(cfg.Knowledge.EmbedderURL, cfg.Knowledge.EmbedderModel, cfg.Knowledge.EmbedderDims, log)
	store, err := knowledge.NewStore(cfg.Knowledge.DBPath, cfg.Knowledge.Collection, cfg.Knowledge.CacheSize, embedder, log)
	if err != nil {
		log.Error("Failed to open knowledge store", "error", err, "path", cfg.Knowledge.DBPath)
		os.Exit(1)
	}
	log.Info("Knowledge store opened", "documents", store.Count())

	personas, err := persona.NewLoader(cfg.ProfileDir, log)
	if err != nil {
		log.Error("Failed to load NPC profiles", "error", err, "dir", cfg.ProfileDir)
		os.Exit(1)
	}
	log.Info("NPC profiles loaded", "count", len(personas.List()))

	historyStore := history.NewRedisStore(cfg.RedisURL, log)
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := historyStore.Ping(storageCtx); err != nil {
		log.Error("Failed to connect to history store", "error", err)
		os.Exit(1)
	}
	log.Info("History store connection established")

	proc := processor.New(cfg, store, personas, historyStore, log)

	// Warm up the selected backend so the first request doesn't pay
	// for a model pull.
	if tier, err := processor.SelectTier(cfg, ""); err != nil {
		log.Error("No usable processing tier", "error", err)
		os.Exit(1)
	} else if tier == npc.TierLocal {
		initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer initCancel()
		if err := proc.InitBackend(initCtx, tier); err != nil {
			log.Error("Failed to initialize local model", "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/health", handlers.NewHealthHandler(historyStore, store, log))
	mux.Handle("/v1/chat", handlers.NewChatHandler(proc, log))
	mux.Handle("/v1/npcs", handlers.NewNPCsHandler(personas, log))
	mux.Handle("/v1/analytics", handlers.NewAnalyticsHandler(store, log))

	handler := middleware.Logger(log, mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	if err := historyStore.Close(); err != nil {
		log.Error("Error closing history store", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Error("Error closing knowledge store", "error", err)
	}

	log.Info("Server exited")
}
