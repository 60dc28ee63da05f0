package storage

import (
	"errors"
	"path/filepath"
	"testing"

	"bnsearch/internal/config"
)

func TestOpenMemory(t *testing.T) {
	store, err := Open(config.StoreConfig{Kind: "memory"})
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	if _, ok := store.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(config.StoreConfig{Kind: "redis"})
	if !errors.Is(err, ErrUnsupportedBackend) {
		t.Fatalf("expected unsupported backend, got %v", err)
	}
}

func TestOpenSQLiteNeedsPath(t *testing.T) {
	if _, err := Open(config.StoreConfig{Kind: "sqlite"}); err == nil {
		t.Fatal("expected missing path error")
	}
}

func TestCloseMemory(t *testing.T) {
	if err := Close(NewMemoryStore()); err != nil {
		t.Fatalf("close memory store: %v", err)
	}
}

func TestOpenDefaultKind(t *testing.T) {
	store, err := Open(config.StoreConfig{Path: filepath.Join(t.TempDir(), "bnsearch.db")})
	if err != nil {
		t.Fatalf("open default store: %v", err)
	}
	if err := Close(store); err != nil {
		t.Fatalf("close default store: %v", err)
	}
}
