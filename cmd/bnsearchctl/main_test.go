package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bnsearch/internal/network"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--store", "memory"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeBistable(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bistable.ebnf")
	require.NoError(t, os.WriteFile(path, []byte("targets, factors\nnA, (nB)\nnB, (nA)\n"), 0o644))
	return path
}

func TestGeneratePrintsNetworkJSON(t *testing.T) {
	out, _, err := execute(t, "generate", "--nodes", "3", "--arity", "1", "--seed", "2")
	require.NoError(t, err)

	var open network.OpenNetwork
	require.NoError(t, json.Unmarshal([]byte(out), &open))
	assert.Equal(t, 3, open.Len())
}

func TestGenerateSaveReportsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "net.json")
	out, errOut, err := execute(t, "generate", "--nodes", "2", "--arity", "1", "--save", "--out", path)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "network_id=")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestEBNFFromFile(t *testing.T) {
	out, _, err := execute(t, "ebnf", "--file", writeBistable(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "targets, factors\n"))
	assert.Contains(t, out, "nA, (nB)")
}

func TestAttractorsText(t *testing.T) {
	out, _, err := execute(t, "attractors", "--file", writeBistable(t))
	require.NoError(t, err)
	assert.Contains(t, out, "attractor 0 ")
	assert.Contains(t, out, "attractor 2 ")
	assert.Contains(t, out, "atm:")
}

func TestAttractorsJSON(t *testing.T) {
	out, _, err := execute(t, "attractors", "--file", writeBistable(t), "--json")
	require.NoError(t, err)

	var report struct {
		Result struct {
			Attractors []json.RawMessage `json:"attractors"`
		}
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Result.Attractors, 3)
}

func TestRunWritesSummaryAndArtifacts(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "run", "--nodes", "4", "--max-iters", "10", "--seed", "3", "--artifacts-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "run_id=")
	assert.Contains(t, out, "reason=")

	_, err = os.Stat(filepath.Join(dir, "run_index.json"))
	assert.NoError(t, err)
}

func TestRunRejectsInvalidOverride(t *testing.T) {
	_, _, err := execute(t, "run", "--nodes", "4", "--oracle", "exec", "--artifacts-dir", t.TempDir())
	assert.Error(t, err)
}

func TestShowWithoutRunsFails(t *testing.T) {
	_, _, err := execute(t, "show", "--latest")
	assert.Error(t, err)
}

func TestRejectsBadLogLevel(t *testing.T) {
	_, _, err := execute(t, "--log-level", "loud", "runs")
	assert.Error(t, err)
}

func TestRejectsUnknownStore(t *testing.T) {
	_, _, err := execute(t, "--store", "tape", "runs")
	assert.Error(t, err)
}
