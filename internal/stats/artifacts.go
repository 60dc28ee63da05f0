package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"bnsearch/internal/config"
	"bnsearch/internal/model"
)

const (
	runIndexFile     = "run_index.json"
	configFile       = "config.json"
	outcomeFile      = "outcome.json"
	scoreHistoryFile = "score_history.csv"
	bestNetworkJSON  = "best_network.json"
	bestNetworkEBNF  = "best_network.ebnf"
)

var scoreHistoryHeader = []string{"iteration", "candidate", "score", "accepted", "flips"}

// RunConfigFile is the persisted form of config.json.
type RunConfigFile struct {
	RunID  string           `json:"run_id"`
	Config config.RunConfig `json:"config"`
}

type RunArtifacts struct {
	RunID   string
	Config  config.RunConfig
	Outcome model.SearchOutcome
	History []model.IterationRecord
	// BestNetwork is the network JSON document; BestEBNF may be empty when
	// the network has labels ebnf cannot carry.
	BestNetwork json.RawMessage
	BestEBNF    string
}

type RunIndexEntry struct {
	RunID        string  `json:"run_id"`
	Objective    string  `json:"objective"`
	Nodes        int     `json:"nodes"`
	Seed         int64   `json:"seed"`
	Iterations   int     `json:"iterations"`
	FinalScore   float64 `json:"final_score"`
	Reason       string  `json:"reason"`
	Reached      bool    `json:"reached"`
	CreatedAtUTC string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes one run directory under baseDir and returns its
// path.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if strings.TrimSpace(artifacts.RunID) == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), RunConfigFile{RunID: artifacts.RunID, Config: artifacts.Config}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, outcomeFile), artifacts.Outcome); err != nil {
		return "", err
	}
	if err := WriteScoreHistory(runDir, artifacts.History); err != nil {
		return "", err
	}
	if len(artifacts.BestNetwork) > 0 {
		if err := writeJSON(filepath.Join(runDir, bestNetworkJSON), artifacts.BestNetwork); err != nil {
			return "", err
		}
	}
	if artifacts.BestEBNF != "" {
		if err := os.WriteFile(filepath.Join(runDir, bestNetworkEBNF), []byte(artifacts.BestEBNF), 0o644); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := readRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// readRunIndex returns the entries in append order.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListRunIndex returns index entries newest first. Entries with equal
// timestamps keep the later-appended one first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ea, eb := entries[order[a]], entries[order[b]]
		if ea.CreatedAtUTC == eb.CreatedAtUTC {
			return order[a] > order[b]
		}
		return ea.CreatedAtUTC > eb.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(entries))
	for _, i := range order {
		sorted = append(sorted, entries[i])
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's files to outDir/runID.
// Optional files that were never written are skipped.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	for _, file := range []string{configFile, outcomeFile, scoreHistoryFile} {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, file := range []string{bestNetworkJSON, bestNetworkEBNF} {
		path := filepath.Join(src, file)
		if _, err := os.Stat(path); err == nil {
			if err := copyFile(path, filepath.Join(dst, file)); err != nil {
				return "", err
			}
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfigFile, bool, error) {
	var cfg RunConfigFile
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadOutcome(baseDir, runID string) (model.SearchOutcome, bool, error) {
	var outcome model.SearchOutcome
	ok, err := readJSON(filepath.Join(baseDir, runID, outcomeFile), &outcome)
	return outcome, ok, err
}

func ReadBestNetwork(baseDir, runID string) (json.RawMessage, bool, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runID, bestNetworkJSON))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return json.RawMessage(data), true, nil
}

func WriteScoreHistory(runDir string, history []model.IterationRecord) error {
	file, err := os.Create(filepath.Join(runDir, scoreHistoryFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(scoreHistoryHeader); err != nil {
		return err
	}
	for _, row := range history {
		if err := writer.Write([]string{
			strconv.Itoa(row.Iteration),
			strconv.FormatFloat(row.Candidate, 'f', -1, 64),
			strconv.FormatFloat(row.Score, 'f', -1, 64),
			strconv.FormatBool(row.Accepted),
			strconv.Itoa(row.Flips),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadScoreHistory(baseDir, runID string) ([]model.IterationRecord, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, scoreHistoryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.IterationRecord{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(scoreHistoryHeader) {
		return nil, false, fmt.Errorf("score history header must have %d columns", len(scoreHistoryHeader))
	}

	history := make([]model.IterationRecord, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		row, err := parseHistoryRow(record)
		if err != nil {
			return nil, false, err
		}
		history = append(history, row)
	}
	return history, true, nil
}

func parseHistoryRow(record []string) (model.IterationRecord, error) {
	var row model.IterationRecord
	var err error
	if row.Iteration, err = strconv.Atoi(record[0]); err != nil {
		return row, fmt.Errorf("iteration: %w", err)
	}
	if row.Candidate, err = strconv.ParseFloat(record[1], 64); err != nil {
		return row, fmt.Errorf("candidate: %w", err)
	}
	if row.Score, err = strconv.ParseFloat(record[2], 64); err != nil {
		return row, fmt.Errorf("score: %w", err)
	}
	if row.Accepted, err = strconv.ParseBool(record[3]); err != nil {
		return row, fmt.Errorf("accepted: %w", err)
	}
	if row.Flips, err = strconv.Atoi(record[4]); err != nil {
		return row, fmt.Errorf("flips: %w", err)
	}
	return row, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
