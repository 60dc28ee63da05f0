package storage

import (
	"errors"
	"fmt"

	"bnsearch/internal/config"
)

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// Open builds the store described by cfg. An empty kind selects
// DefaultStoreKind.
func Open(cfg config.StoreConfig) (Store, error) {
	kind := cfg.Kind
	if kind == "" {
		kind = DefaultStoreKind()
	}
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if cfg.Path == "" {
			return nil, errors.New("sqlite store needs a path")
		}
		return newSQLiteStore(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
}

// Close releases stores that hold a connection; the memory store has none.
func Close(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
