//go:build sqlite

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bnsearch/internal/model"
)

func TestSQLiteStoreNetworkAndRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "bnsearch.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	record := testNetwork("n1")
	if err := store.SaveNetwork(ctx, record); err != nil {
		t.Fatalf("save network: %v", err)
	}
	loaded, ok, err := store.GetNetwork(ctx, "n1")
	if err != nil {
		t.Fatalf("get network: %v", err)
	}
	if !ok || loaded.ID != "n1" || string(loaded.Network) != `{"nodes":[]}` {
		t.Fatalf("unexpected network loaded: ok=%t %+v", ok, loaded)
	}

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2"} {
		if err := store.SaveRun(ctx, testRun(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save run %s: %v", id, err)
		}
	}
	updated := testRun("r1", base.Add(time.Hour))
	updated.Outcome.Reason = "target_reached"
	if err := store.SaveRun(ctx, updated); err != nil {
		t.Fatalf("overwrite run: %v", err)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "r1" || runs[0].Outcome.Reason != "target_reached" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestSQLiteStoreScoreHistoryPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "bnsearch.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	history := []model.IterationRecord{{Iteration: 1, Candidate: 1, Score: 1, Accepted: true, Flips: 1}}
	if err := store.SaveScoreHistory(ctx, "run-1", history); err != nil {
		t.Fatalf("save history: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewSQLiteStore(dbPath)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})

	loaded, ok, err := reopened.GetScoreHistory(ctx, "run-1")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if !ok || len(loaded) != 1 || loaded[0] != history[0] {
		t.Fatalf("unexpected history: ok=%t %+v", ok, loaded)
	}
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected missing path error")
	}
}
