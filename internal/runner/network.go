package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"bnsearch/internal/config"
	"bnsearch/internal/model"
	"bnsearch/internal/network"
	"bnsearch/internal/storage"
)

// Network source names recorded on stored networks.
const (
	SourceFactory = "factory"
	SourceFile    = "file"
	SourceStore   = "store"
	SourceSearch  = "search"
)

// LoadNetwork reads an open network from a JSON or ebnf file. Files ending
// in .ebnf or starting with the ebnf header are parsed as ebnf and yield a
// network without inputs or outputs.
func LoadNetwork(path string) (*network.OpenNetwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if strings.HasSuffix(path, ".ebnf") || strings.HasPrefix(text, "targets") {
		net, err := network.ParseEBNF(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return network.NewOpen(net, nil, nil)
	}
	open, err := network.DecodeOpen(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return open, nil
}

// FetchNetwork loads a stored network by ID.
func FetchNetwork(ctx context.Context, store storage.Store, id string) (*network.OpenNetwork, error) {
	record, ok, err := store.GetNetwork(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("network not found: %s", id)
	}
	open, err := network.DecodeOpen(record.Network)
	if err != nil {
		return nil, fmt.Errorf("decode stored network %s: %w", id, err)
	}
	return open, nil
}

// GenerateNetwork builds a random open network from the network section.
func GenerateNetwork(cfg config.NetworkConfig, rng *rand.Rand) (*network.OpenNetwork, error) {
	factory, err := network.NewFactory(cfg.Factory())
	if err != nil {
		return nil, err
	}
	return factory.GenerateOpen(rng)
}

// ResolveNetwork picks the initial network by precedence: file, stored ID,
// then generation. The returned ID is set only for stored networks.
func ResolveNetwork(ctx context.Context, store storage.Store, cfg config.NetworkConfig, rng *rand.Rand) (*network.OpenNetwork, string, string, error) {
	switch {
	case cfg.File != "":
		open, err := LoadNetwork(cfg.File)
		return open, "", SourceFile, err
	case cfg.StoredID != "":
		open, err := FetchNetwork(ctx, store, cfg.StoredID)
		return open, cfg.StoredID, SourceStore, err
	default:
		open, err := GenerateNetwork(cfg, rng)
		return open, "", SourceFactory, err
	}
}

// NetworkRecord encodes open as a versioned store record.
func NetworkRecord(id, source string, open *network.OpenNetwork, now time.Time) (model.NetworkRecord, error) {
	payload, err := json.Marshal(open)
	if err != nil {
		return model.NetworkRecord{}, fmt.Errorf("encode network: %w", err)
	}
	return model.NetworkRecord{
		VersionedRecord: storage.Versioned(),
		ID:              id,
		Nodes:           open.Len(),
		Source:          source,
		CreatedAt:       now.UTC(),
		Network:         payload,
	}, nil
}
