package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/keeper/internal/storage/sqlite"
	"github.com/scrypster/keeper/pkg/types"
)

// newTestDB creates a real graph database on disk and returns its path.
func newTestDB(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "keeper.db")

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	e := types.NewEntity(types.EntityPerson, "Julian")
	if err := store.PutEntity(context.Background(), e); err != nil {
		t.Fatalf("failed to seed entity: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
	return dbPath
}

func TestNewServiceValidation(t *testing.T) {
	if _, err := NewService(Options{Dir: t.TempDir()}); err == nil {
		t.Error("expected error for missing database path")
	}
	if _, err := NewService(Options{DBPath: "x.db"}); err == nil {
		t.Error("expected error for missing backup directory")
	}

	svc, err := NewService(Options{DBPath: "x.db", Dir: filepath.Join(t.TempDir(), "nested", "backups")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.opts.Interval != 24*time.Hour {
		t.Errorf("expected default interval 24h, got %v", svc.opts.Interval)
	}
	if svc.opts.RetentionDays != 30 {
		t.Errorf("expected default retention 30 days, got %d", svc.opts.RetentionDays)
	}
}

func TestSnapshotNowAndRestore(t *testing.T) {
	dbPath := newTestDB(t)
	backupDir := t.TempDir()

	svc, err := NewService(Options{DBPath: dbPath, Dir: backupDir, Verify: true})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	result, err := svc.SnapshotNow(context.Background())
	if err != nil {
		t.Fatalf("SnapshotNow failed: %v", err)
	}
	if !result.Verified {
		t.Error("expected snapshot to be verified")
	}
	if result.Size == 0 {
		t.Error("expected non-empty snapshot")
	}

	snapshots, err := svc.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snapshots))
	}

	// Corrupt the live database, then restore the snapshot over it.
	if err := os.WriteFile(dbPath, []byte("garbage"), 0o600); err != nil {
		t.Fatalf("failed to corrupt database: %v", err)
	}
	if err := svc.Restore(snapshots[0].Path); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("failed to reopen restored database: %v", err)
	}
	defer func() { _ = store.Close() }()
	if _, err := store.GetEntity(context.Background(), types.NewEntityID(types.EntityPerson, "Julian")); err != nil {
		t.Errorf("expected seeded entity after restore, got error: %v", err)
	}
}

func TestSnapshotMissingDatabase(t *testing.T) {
	svc, err := NewService(Options{DBPath: filepath.Join(t.TempDir(), "absent.db"), Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	if _, err := svc.SnapshotNow(context.Background()); err == nil {
		t.Error("expected error for missing database")
	}
}

func TestPruneRemovesExpiredSnapshots(t *testing.T) {
	dbPath := newTestDB(t)
	backupDir := t.TempDir()

	svc, err := NewService(Options{DBPath: dbPath, Dir: backupDir, RetentionDays: 7})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	// An old file past the retention window and a fresh snapshot.
	oldPath := filepath.Join(backupDir, "keeper-old.db")
	if err := os.WriteFile(oldPath, []byte("sqlite"), 0o600); err != nil {
		t.Fatalf("failed to create old snapshot: %v", err)
	}
	oldTime := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, oldTime, oldTime); err != nil {
		t.Fatalf("failed to age old snapshot: %v", err)
	}

	if _, err := svc.SnapshotNow(context.Background()); err != nil {
		t.Fatalf("SnapshotNow failed: %v", err)
	}

	snapshots, err := svc.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected old snapshot to be pruned, got %d snapshots", len(snapshots))
	}
	if snapshots[0].Path == oldPath {
		t.Error("expected the fresh snapshot to survive, not the expired one")
	}
}

func TestListIgnoresNonSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("notes"), 0o600); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "keeper-1.db"), []byte("sqlite"), 0o600); err != nil {
		t.Fatalf("failed to create snapshot: %v", err)
	}

	snapshots, err := listSnapshots(dir)
	if err != nil {
		t.Fatalf("listSnapshots failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("expected 1 snapshot, got %d", len(snapshots))
	}
}

func TestRestoreRefusedWhileRunning(t *testing.T) {
	dbPath := newTestDB(t)
	svc, err := NewService(Options{DBPath: dbPath, Dir: t.TempDir(), Interval: time.Hour})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = svc.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		svc.mu.Lock()
		running := svc.running
		svc.mu.Unlock()
		if running {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := svc.Restore("whatever.db"); err == nil {
		t.Error("expected restore to be refused while running")
	}
	svc.Stop()
}
