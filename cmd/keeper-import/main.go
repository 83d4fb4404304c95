// Command keeper-import ingests an Obsidian vault or Markdown folder into
// the knowledge graph.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/keeper/internal/config"
	"github.com/scrypster/keeper/internal/extract"
	"github.com/scrypster/keeper/internal/graph"
	"github.com/scrypster/keeper/internal/importer"
	"github.com/scrypster/keeper/internal/storage/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	vaultDir := flag.String("vault", "", "Directory of Markdown notes to import")
	watch := flag.Bool("watch", false, "Keep watching the vault and ingest changed notes")
	flag.Parse()

	if *vaultDir == "" {
		fmt.Fprintln(os.Stderr, "usage: keeper-import -vault <directory> [-config <file>]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataPath, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := sqlite.New(filepath.Join(cfg.Storage.DataPath, "keeper.db"))
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	// Imports run offline on patterns; re-ingesting with an LLM later
	// appends richer observations to the same entities.
	manager := graph.NewManager(store, extract.NewPatternExtractor(), nil)
	imp := importer.NewVaultImporter(manager)

	ctx := context.Background()
	jobID, err := imp.StartImport(ctx, *vaultDir)
	if err != nil {
		log.Fatalf("Import failed to start: %v", err)
	}

	for {
		progress, ok := imp.GetJobProgress(jobID)
		if !ok {
			log.Fatal("import job vanished")
		}
		if progress.Status != "running" {
			break
		}
		log.Printf("importing %d/%d: %s", progress.FilesProcessed, progress.FilesTotal, progress.CurrentFile)
		time.Sleep(200 * time.Millisecond)
	}

	result := imp.GetJobResult(jobID)
	if result == nil {
		log.Fatal("no import result")
	}

	fmt.Printf("Import complete in %v\n", result.Duration.Round(time.Millisecond))
	fmt.Printf("  Files:         %d found, %d processed, %d skipped, %d failed\n",
		result.FilesFound, result.FilesProcessed, result.FilesSkipped, result.FilesFailed)
	fmt.Printf("  Entities:      %d created, %d merged\n", result.EntitiesCreated, result.EntitiesMerged)
	fmt.Printf("  Relationships: %d\n", result.RelationshipsFound)
	fmt.Printf("  Wiki links:    %d\n", result.WikiLinksFound)
	for _, e := range result.Errors {
		fmt.Printf("  error: %s\n", e)
	}

	if *watch {
		watchVault(ctx, manager, *vaultDir)
		return
	}
	if result.FilesFailed > 0 {
		os.Exit(1)
	}
}

// watchVault keeps ingesting notes as they change until interrupted.
func watchVault(ctx context.Context, manager *graph.Manager, root string) {
	vw := importer.NewVaultWatcher(root, func(path string) {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("watch: read %s: %v", path, err)
			return
		}
		rel, _ := filepath.Rel(root, path)
		parsed, err := importer.ParseMarkdownFile(data, path, rel)
		if err != nil {
			log.Printf("watch: parse %s: %v", rel, err)
			return
		}
		report := manager.Ingest(ctx, parsed.Content, "import:"+rel)
		if !report.Success {
			log.Printf("watch: ingest %s: %s", rel, report.Error)
			return
		}
		log.Printf("watch: ingested %s (%d created, %d merged)", rel, report.Created, report.Merged)
	})
	if err := vw.Start(); err != nil {
		log.Fatalf("Failed to start watcher: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	vw.Stop()
}
