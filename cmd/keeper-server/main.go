// Command keeper-server runs the knowledge graph HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/keeper/internal/backup"
	"github.com/scrypster/keeper/internal/config"
	"github.com/scrypster/keeper/internal/extract"
	"github.com/scrypster/keeper/internal/graph"
	"github.com/scrypster/keeper/internal/llm"
	"github.com/scrypster/keeper/internal/server"
	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/internal/storage/postgres"
	"github.com/scrypster/keeper/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	extractor, embedder := buildCollaborators(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := graph.NewManager(store, extractor, embedder, managerOptions(cfg)...)

	addr, hub, err := server.Start(ctx, cfg, manager)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	manager.SetEventSink(func(e graph.Event) { hub.Broadcast(e) })
	log.Printf("Keeper API listening at http://%s", addr)

	if cfg.Backup.Enabled && cfg.Storage.Engine == "sqlite" {
		svc, err := backup.NewService(backup.Options{
			DBPath:        filepath.Join(cfg.Storage.DataPath, "keeper.db"),
			Dir:           cfg.Backup.Path,
			Interval:      cfg.Backup.Interval,
			RetentionDays: cfg.Backup.RetentionDays,
			Verify:        true,
		})
		if err != nil {
			log.Fatalf("Failed to create backup service: %v", err)
		}
		go func() {
			if err := svc.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("Backup service error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second)
}

// openStore selects the storage backend from configuration.
func openStore(cfg *config.Config) (storage.GraphStore, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresDSN)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
			return nil, err
		}
		return sqlite.New(filepath.Join(cfg.Storage.DataPath, "keeper.db"))
	}
}

// buildCollaborators wires the extraction chain and the embedder. When the
// provider is "none", extraction runs on patterns alone and search loses
// its semantic strategy.
func buildCollaborators(cfg *config.Config) (extract.Extractor, llm.EmbeddingGenerator) {
	if cfg.LLM.Provider == "none" {
		log.Println("LLM provider disabled, using pattern extraction only")
		return extract.NewPatternExtractor(), nil
	}

	provider := llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.OllamaURL,
		APIKey:         cfg.LLM.OpenAIAPIKey,
		Model:          cfg.LLM.OllamaModel,
		EmbeddingModel: cfg.LLM.OllamaEmbeddingModel,
	}
	if cfg.LLM.Provider == "openai" {
		provider.BaseURL = ""
		provider.Model = cfg.LLM.OpenAIModel
		provider.EmbeddingModel = cfg.LLM.OpenAIEmbeddingModel
	}

	generator, err := llm.NewTextGenerator(provider)
	if err != nil {
		log.Printf("WARNING: %v, using pattern extraction only", err)
		return extract.NewPatternExtractor(), nil
	}
	embedder, err := llm.NewEmbeddingGenerator(provider)
	if err != nil {
		log.Printf("WARNING: %v, semantic search disabled", err)
		embedder = nil
	}

	extractor := extract.Fallback(
		extract.NewLLMExtractor(generator),
		extract.NewPatternExtractor(),
	)
	return extractor, embedder
}

func managerOptions(cfg *config.Config) []graph.ManagerOption {
	var opts []graph.ManagerOption
	if cfg.Graph.EmbeddingMerge == "recompute" {
		opts = append(opts, graph.WithEmbeddingMerge(graph.MergeRecompute))
	}
	if len(cfg.Graph.TrustedSources) > 0 {
		opts = append(opts, graph.WithTrustedSources(cfg.Graph.TrustedSources))
	}
	return opts
}
