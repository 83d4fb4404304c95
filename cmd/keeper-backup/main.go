// Command keeper-backup snapshots the knowledge graph database on a
// schedule, or runs one-off snapshot, list, and restore operations.
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

	"github.com/scrypster/keeper/internal/backup"
	"github.com/scrypster/keeper/internal/config"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (optional)")
	dbPath     = flag.String("db", "", "Path to database file (overrides config)")
	backupDir  = flag.String("backup-dir", "", "Snapshot directory (overrides config)")
	interval   = flag.Duration("interval", 0, "Snapshot interval (overrides config)")
	verify     = flag.Bool("verify", true, "Verify snapshots after creation")
	oneshot    = flag.Bool("oneshot", false, "Take a single snapshot and exit")
	restore    = flag.String("restore", "", "Restore database from snapshot file and exit")
	listCmd    = flag.Bool("list", false, "List stored snapshots and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	opts := backup.Options{
		DBPath:        filepath.Join(cfg.Storage.DataPath, "keeper.db"),
		Dir:           cfg.Backup.Path,
		Interval:      cfg.Backup.Interval,
		RetentionDays: cfg.Backup.RetentionDays,
		Verify:        *verify,
	}
	if *dbPath != "" {
		opts.DBPath = *dbPath
	}
	if *backupDir != "" {
		opts.Dir = *backupDir
	}
	if *interval > 0 {
		opts.Interval = *interval
	}

	svc, err := backup.NewService(opts)
	if err != nil {
		log.Fatalf("Failed to create backup service: %v", err)
	}

	switch {
	case *restore != "":
		if err := svc.Restore(*restore); err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Println("Database restored successfully")
	case *listCmd:
		listSnapshots(svc)
	case *oneshot:
		result, err := svc.SnapshotNow(context.Background())
		if err != nil {
			log.Fatalf("Snapshot failed: %v", err)
		}
		log.Printf("Snapshot written: path=%s size=%.2f MB duration=%v verified=%v",
			result.Path, float64(result.Size)/(1024*1024), result.Duration, result.Verified)
	default:
		runService(svc)
	}
}

func listSnapshots(svc *backup.Service) {
	snapshots, err := svc.List()
	if err != nil {
		log.Fatalf("Failed to list snapshots: %v", err)
	}
	if len(snapshots) == 0 {
		fmt.Println("No snapshots found")
		return
	}
	fmt.Printf("Found %d snapshot(s):\n\n", len(snapshots))
	for i, s := range snapshots {
		fmt.Printf("%d. %s\n", i+1, s.Path)
		fmt.Printf("   Size: %.2f MB\n", float64(s.Size)/(1024*1024))
		fmt.Printf("   Created: %s (%s ago)\n\n",
			s.Timestamp.Format(time.RFC3339),
			time.Since(s.Timestamp).Round(time.Minute))
	}
}

func runService(svc *backup.Service) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := svc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("Backup service error: %v", err)
		}
	}()

	log.Println("Keeper backup service started, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down backup service...")
	svc.Stop()
}
