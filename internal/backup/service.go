// Package backup takes periodic snapshots of the knowledge graph database
// and prunes them by age.
package backup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Options configures the backup service.
type Options struct {
	// DBPath is the SQLite database file to snapshot.
	DBPath string

	// Dir is where snapshots are written.
	Dir string

	// Interval between automatic snapshots. Defaults to 24h.
	Interval time.Duration

	// RetentionDays is how long snapshots are kept. Defaults to 30.
	RetentionDays int

	// Verify enables an integrity check after each snapshot.
	Verify bool
}

// Snapshot describes a stored backup file.
type Snapshot struct {
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Result summarizes a completed snapshot.
type Result struct {
	Path     string        `json:"path"`
	Size     int64         `json:"size"`
	Duration time.Duration `json:"duration_ms"`
	Verified bool          `json:"verified"`
}

// Service runs scheduled snapshots of the graph database.
type Service struct {
	opts Options

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	last    time.Time
}

// NewService validates options and prepares the snapshot directory.
func NewService(opts Options) (*Service, error) {
	if opts.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("backup directory is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 24 * time.Hour
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = 30
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &Service{opts: opts, stopCh: make(chan struct{})}, nil
}

// Run blocks, taking a snapshot every interval until ctx is cancelled or
// Stop is called.
func (s *Service) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("backup service is already running")
	}
	s.running = true
	s.mu.Unlock()

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	log.Printf("backup: service started: interval=%v dir=%s", s.opts.Interval, s.opts.Dir)

	for {
		select {
		case <-ctx.Done():
			log.Println("backup: service stopping (context cancelled)")
			return ctx.Err()
		case <-s.stopCh:
			log.Println("backup: service stopping")
			return nil
		case <-ticker.C:
			result, err := s.SnapshotNow(ctx)
			if err != nil {
				log.Printf("backup: scheduled snapshot failed: %v", err)
				continue
			}
			log.Printf("backup: snapshot complete: path=%s size=%d duration=%v verified=%v",
				result.Path, result.Size, result.Duration, result.Verified)
		}
	}
}

// Stop ends a running service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
	s.running = false
}

// SnapshotNow takes an immediate snapshot and prunes expired ones.
func (s *Service) SnapshotNow(ctx context.Context) (*Result, error) {
	start := time.Now()

	if _, err := os.Stat(s.opts.DBPath); err != nil {
		return nil, fmt.Errorf("database not found: %w", err)
	}

	name := fmt.Sprintf("keeper-%s.db", time.Now().Format("20060102-150405.000000"))
	path := filepath.Join(s.opts.Dir, name)

	if err := snapshotSQLite(s.opts.DBPath, path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	result := &Result{
		Path:     path,
		Size:     info.Size(),
		Duration: time.Since(start),
	}

	if s.opts.Verify {
		if err := verifySnapshot(path); err != nil {
			return nil, fmt.Errorf("snapshot verification failed: %w", err)
		}
		result.Verified = true
	}

	s.mu.Lock()
	s.last = time.Now()
	s.mu.Unlock()

	if err := s.prune(); err != nil {
		log.Printf("backup: WARNING: failed to prune old snapshots: %v", err)
	}

	return result, nil
}

// List returns all stored snapshots, newest first.
func (s *Service) List() ([]Snapshot, error) {
	return listSnapshots(s.opts.Dir)
}

// Restore replaces the live database with the given snapshot. The service
// and all database consumers must be stopped first.
func (s *Service) Restore(snapshotPath string) error {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return fmt.Errorf("cannot restore while backup service is running")
	}

	if _, err := os.Stat(snapshotPath); err != nil {
		return fmt.Errorf("snapshot not found: %w", err)
	}

	// Keep a pre-restore copy so a bad snapshot cannot destroy the live data.
	preRestore := s.opts.DBPath + ".pre-restore"
	if _, err := os.Stat(s.opts.DBPath); err == nil {
		if err := snapshotSQLite(s.opts.DBPath, preRestore); err != nil {
			return fmt.Errorf("failed to create pre-restore snapshot: %w", err)
		}
		defer func() { _ = os.Remove(preRestore) }()
	}

	if err := restoreSnapshot(snapshotPath, s.opts.DBPath); err != nil {
		if _, statErr := os.Stat(preRestore); statErr == nil {
			if rbErr := restoreSnapshot(preRestore, s.opts.DBPath); rbErr != nil {
				return fmt.Errorf("restore failed and rollback failed: %v (restore error: %w)", rbErr, err)
			}
			return fmt.Errorf("restore failed, rolled back to previous state: %w", err)
		}
		return err
	}

	log.Printf("backup: database restored from %s", snapshotPath)
	return nil
}

// prune removes snapshots older than the retention window.
func (s *Service) prune() error {
	snapshots, err := listSnapshots(s.opts.Dir)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -s.opts.RetentionDays)
	var lastErr error
	for _, snap := range snapshots {
		if snap.Timestamp.After(cutoff) {
			continue
		}
		if err := os.Remove(snap.Path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete some snapshots: %w", lastErr)
	}
	return nil
}

func listSnapshots(dir string) ([]Snapshot, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:      filepath.Join(dir, entry.Name()),
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Timestamp.After(snapshots[j].Timestamp)
	})
	return snapshots, nil
}
