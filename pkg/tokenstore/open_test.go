package tokenstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/tyemirov/quizsession/internal/database"
)

func TestOpenStorageSelectsBackend(t *testing.T) {
	ctx := context.Background()
	server := miniredis.RunT(t)

	testCases := []struct {
		name     string
		location string
		check    func(t *testing.T, storage Storage)
	}{
		{name: "empty", location: "", check: func(t *testing.T, storage Storage) {
			if _, ok := storage.(*MemoryStorage); !ok {
				t.Fatalf("expected memory storage, got %T", storage)
			}
		}},
		{name: "memory", location: "Memory", check: func(t *testing.T, storage Storage) {
			if _, ok := storage.(*MemoryStorage); !ok {
				t.Fatalf("expected memory storage, got %T", storage)
			}
		}},
		{name: "redis", location: "redis://" + server.Addr(), check: func(t *testing.T, storage Storage) {
			if _, ok := storage.(*RedisStorage); !ok {
				t.Fatalf("expected redis storage, got %T", storage)
			}
			if err := storage.SetItem(ctx, KeyAccessToken, "abc"); err != nil {
				t.Fatalf("set: %v", err)
			}
			if value, _ := server.Get("tab-1:" + KeyAccessToken); value != "abc" {
				t.Fatalf("expected namespaced value, got %q", value)
			}
		}},
		{name: "sqlite", location: "sqlite://" + filepath.Join(t.TempDir(), "session.db"), check: func(t *testing.T, storage Storage) {
			databaseStorage, ok := storage.(*DatabaseStorage)
			if !ok || databaseStorage.Driver() != "sqlite" {
				t.Fatalf("expected sqlite storage, got %T", storage)
			}
		}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			storage, closeStorage, err := OpenStorage(ctx, testCase.location, "tab-1")
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer func() { _ = closeStorage() }()
			testCase.check(t, storage)
		})
	}
}

func TestOpenStorageRejectsUnknownScheme(t *testing.T) {
	if _, _, err := OpenStorage(context.Background(), "mysql://localhost/db", ""); !errors.Is(err, database.ErrUnsupportedDialect) {
		t.Fatalf("expected ErrUnsupportedDialect, got %v", err)
	}
}
