package standup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func markerStoreAt(t *testing.T, now time.Time) *FileMarkerStore {
	t.Helper()
	store := NewFileMarkerStore(filepath.Join(t.TempDir(), "markers.json"), zerolog.Nop())
	store.now = func() time.Time { return now }
	return store
}

func TestFileMarkerStore_SetAndExists(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	store := markerStoreAt(t, now)
	ctx := context.Background()

	exists, err := store.Exists(ctx, "standup:2026-08")
	if err != nil {
		t.Fatalf("exists on empty store: %v", err)
	}
	if exists {
		t.Fatal("marker should not exist before set")
	}

	if err := store.Set(ctx, "standup:2026-08", markerTTL); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	exists, err = store.Exists(ctx, "standup:2026-08")
	if err != nil {
		t.Fatalf("exists after set: %v", err)
	}
	if !exists {
		t.Fatal("marker should exist after set")
	}
}

func TestFileMarkerStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	first := NewFileMarkerStore(path, zerolog.Nop())
	if err := first.Set(context.Background(), "standup:2026-08", markerTTL); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	reopened := NewFileMarkerStore(path, zerolog.Nop())
	exists, err := reopened.Exists(context.Background(), "standup:2026-08")
	if err != nil {
		t.Fatalf("exists after reopen: %v", err)
	}
	if !exists {
		t.Fatal("marker must survive a process restart")
	}
}

func TestFileMarkerStore_Expiry(t *testing.T) {
	now := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	store := markerStoreAt(t, now)
	ctx := context.Background()

	if err := store.Set(ctx, "standup:2026-08", time.Hour); err != nil {
		t.Fatalf("set marker: %v", err)
	}

	store.now = func() time.Time { return now.Add(2 * time.Hour) }
	exists, err := store.Exists(ctx, "standup:2026-08")
	if err != nil {
		t.Fatalf("exists after expiry: %v", err)
	}
	if exists {
		t.Fatal("expired marker must not count")
	}

	// A later set prunes the expired entry from the document.
	if err := store.Set(ctx, "standup:2026-09", time.Hour); err != nil {
		t.Fatalf("second set: %v", err)
	}
	exists, err = store.Exists(ctx, "standup:2026-08")
	if err != nil {
		t.Fatalf("exists after prune: %v", err)
	}
	if exists {
		t.Fatal("expired marker should be pruned")
	}
}

func TestFileMarkerStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "markers.json")
	if err := os.WriteFile(path, []byte("???"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	store := NewFileMarkerStore(path, zerolog.Nop())

	exists, err := store.Exists(context.Background(), "standup:2026-08")
	if err != nil {
		t.Fatalf("exists on corrupt store: %v", err)
	}
	if exists {
		t.Fatal("corrupt store starts fresh")
	}
	if err := store.Set(context.Background(), "standup:2026-08", time.Hour); err != nil {
		t.Fatalf("set on corrupt store: %v", err)
	}
}
