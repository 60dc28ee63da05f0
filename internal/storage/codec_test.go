package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bnsearch/internal/model"
	"bnsearch/internal/network"
)

func TestDecodeNetworkFixture(t *testing.T) {
	data := readFixture(t, "network_record_v1.json")

	record, err := DecodeNetwork(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if record.ID != "net-fixture-1" || record.Nodes != 2 {
		t.Fatalf("unexpected network record: %+v", record)
	}

	net, err := network.Decode(record.Network)
	if err != nil {
		t.Fatalf("decode embedded network: %v", err)
	}
	if net.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", net.Len())
	}
	next := net.Update()
	if next["A"] != true || next["B"] != true {
		t.Fatalf("unexpected successor state: %v", next)
	}
}

func TestDecodeRunFixture(t *testing.T) {
	data := readFixture(t, "run_record_v1.json")

	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-fixture-1" || run.Seed != 42 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Outcome.Reason != "target_reached" || !run.Outcome.Reached {
		t.Fatalf("unexpected outcome: %+v", run.Outcome)
	}
	if run.Params.MaxStagnation != -1 {
		t.Fatalf("unexpected params: %+v", run.Params)
	}
	if got := run.FinishedAt.Sub(run.StartedAt); got != 4*time.Second {
		t.Fatalf("unexpected run duration: %s", got)
	}
}

func TestDecodeRunRejectsFutureSchema(t *testing.T) {
	data := readFixture(t, "run_record_v2.json")

	_, err := DecodeRun(data)
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeNetworkRejectsMissingVersion(t *testing.T) {
	_, err := DecodeNetwork([]byte(`{"id":"n1","network":{"nodes":[]}}`))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	if _, err := DecodeNetwork([]byte(`{`)); err == nil {
		t.Fatal("expected network decode error")
	}
	if _, err := DecodeRun([]byte(`[]`)); err == nil {
		t.Fatal("expected run decode error")
	}
	if _, err := DecodeScoreHistory([]byte(`{"iteration":1}`)); err == nil {
		t.Fatal("expected history decode error")
	}
}

func TestScoreHistoryCodecRoundTrip(t *testing.T) {
	input := []model.IterationRecord{
		{Iteration: 1, Candidate: 0.25, Score: 0.25, Accepted: true, Flips: 1},
		{Iteration: 2, Candidate: 0.1, Score: 0.25, Accepted: false, Flips: 2},
	}
	data, err := EncodeScoreHistory(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeScoreHistory(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(output) != 2 || output[1] != input[1] {
		t.Fatalf("unexpected history: %+v", output)
	}
}

func TestSortRunsNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	runs := []model.RunRecord{
		{ID: "a", StartedAt: base},
		{ID: "c", StartedAt: base.Add(time.Minute)},
		{ID: "b", StartedAt: base},
	}
	sortRunsNewestFirst(runs)

	want := []string{"c", "b", "a"}
	for i, id := range want {
		if runs[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, runs[i].ID)
		}
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(fixturePath(name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}

func fixturePath(name string) string {
	return filepath.Join("..", "..", "testdata", "fixtures", name)
}
