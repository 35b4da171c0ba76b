package tokenstore

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestDatabaseStorage(t *testing.T) *DatabaseStorage {
	t.Helper()
	storage, err := NewDatabaseStorage(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "legacy.db"))
	if err != nil {
		t.Fatalf("failed to create database storage: %v", err)
	}
	return storage
}

func TestDatabaseStorageLifecycle(t *testing.T) {
	ctx := context.Background()
	storage := newTestDatabaseStorage(t)
	if storage.Driver() != "sqlite" {
		t.Fatalf("expected sqlite driver, got %s", storage.Driver())
	}

	if _, found, err := storage.GetItem(ctx, KeyAccessToken); err != nil || found {
		t.Fatalf("expected missing key, got found=%v err=%v", found, err)
	}
	if err := storage.SetItem(ctx, KeyAccessToken, "first"); err != nil {
		t.Fatalf("set item: %v", err)
	}
	if err := storage.SetItem(ctx, KeyAccessToken, "second"); err != nil {
		t.Fatalf("overwrite item: %v", err)
	}
	value, found, err := storage.GetItem(ctx, KeyAccessToken)
	if err != nil || !found || value != "second" {
		t.Fatalf("expected overwritten value, got %q found=%v err=%v", value, found, err)
	}
	if err := storage.RemoveItem(ctx, KeyAccessToken); err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if err := storage.RemoveItem(ctx, KeyAccessToken); err != nil {
		t.Fatalf("removing a missing key should succeed: %v", err)
	}
	if _, found, _ := storage.GetItem(ctx, KeyAccessToken); found {
		t.Fatalf("expected key to be removed")
	}
}

func TestDatabaseStorageAsLegacyMigrationSource(t *testing.T) {
	ctx := context.Background()
	legacy := newTestDatabaseStorage(t)
	if err := legacy.SetItem(ctx, KeyRefreshToken, "persisted-refresh"); err != nil {
		t.Fatalf("seed legacy storage: %v", err)
	}
	session := NewMemoryStorage()
	store := New(Options{Session: session, Legacy: legacy})

	if token := store.RefreshToken(ctx); token != "persisted-refresh" {
		t.Fatalf("expected migrated refresh token, got %q", token)
	}
	if _, found, _ := legacy.GetItem(ctx, KeyRefreshToken); found {
		t.Fatalf("expected legacy row to be deleted after migration")
	}
}

func TestDatabaseStorageRejectsEmptyKey(t *testing.T) {
	storage := newTestDatabaseStorage(t)
	if err := storage.SetItem(context.Background(), " ", "value"); err != ErrEmptyKey {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}
