package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/stationai/npc-engine/internal/config"
	"github.com/stationai/npc-engine/internal/knowledge"
	"github.com/stationai/npc-engine/internal/logger"
)

// loadkb bulk-imports a knowledge base JSON file into the persisted
// vector index. Documents already present are skipped, so re-running
// against the same index is safe.
func main() {
	kbPath := flag.String("file", "./data/knowledge_base.json", "path to the knowledge base JSON file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	slogger := logger.Setup(cfg)

	embedder := knowledge.NewOllamaEmbedder(cfg.Knowledge.EmbedderURL, cfg.Knowledge.EmbedderModel, cfg.Knowledge.EmbedderDims, slogger)
	store, err := knowledge.NewStore(cfg.Knowledge.DBPath, cfg.Knowledge.Collection, cfg.Knowledge.CacheSize, embedder, slogger)
	if err != nil {
		slogger.Error("Failed to open knowledge store", "error", err, "path", cfg.Knowledge.DBPath)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	added, err := store.LoadKnowledgeBase(ctx, *kbPath)
	if err != nil {
		slogger.Error("Failed to import knowledge base", "error", err, "file", *kbPath)
		os.Exit(1)
	}

	slogger.Info("Knowledge base imported",
		"file", *kbPath,
		"added", added,
		"total_documents", store.Count())
}
