// Package stats writes per-run coordinator artifacts to disk and maintains
// an index of finished runs.
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

	"evostrat/internal/model"
)

const (
	runIndexFile     = "run_index.json"
	configFile       = "config.json"
	summaryFile      = "summary.json"
	rewardSeriesFile = "reward_history.csv"
)

type RunConfig struct {
	RunID             string  `json:"run_id"`
	Sigma             float64 `json:"sigma"`
	Alpha             float64 `json:"alpha"`
	BlockPolicy       string  `json:"block_policy"`
	BlockSize         int     `json:"block_size,omitempty"`
	EpisodesPerWorker float64 `json:"episodes_per_worker,omitempty"`
	Checkpoint        bool    `json:"checkpoint"`
	CheckpointKey     string  `json:"checkpoint_key,omitempty"`
	Store             string  `json:"store"`
	WarmStart         bool    `json:"warm_start"`
}

// RunArtifacts is everything a coordinator run leaves behind. Blocks and
// SmoothedRewards are parallel: SmoothedRewards[i] is the smoothed reward
// right after Blocks[i] committed.
type RunArtifacts struct {
	Config          RunConfig
	Blocks          []model.Block
	SmoothedRewards []float64
	Episodes        int
}

type RunIndexEntry struct {
	RunID               string  `json:"run_id"`
	Sigma               float64 `json:"sigma"`
	Alpha               float64 `json:"alpha"`
	BlockPolicy         string  `json:"block_policy"`
	Blocks              int     `json:"blocks"`
	Episodes            int     `json:"episodes"`
	FinalSmoothedReward float64 `json:"final_smoothed_reward"`
	CreatedAtUTC        string  `json:"created_at_utc"`
}

// SeriesPoint is one row of reward_history.csv.
type SeriesPoint struct {
	Block          int
	Episodes       int
	MeanReward     float64
	SmoothedReward float64
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Config.RunID)
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if len(artifacts.Blocks) != len(artifacts.SmoothedRewards) {
		return "", fmt.Errorf("run %s: %d blocks but %d smoothed rewards", runID, len(artifacts.Blocks), len(artifacts.SmoothedRewards))
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}

	points := make([]SeriesPoint, len(artifacts.Blocks))
	means := make([]float64, len(artifacts.Blocks))
	for i, block := range artifacts.Blocks {
		means[i] = block.MeanReward()
		points[i] = SeriesPoint{
			Block:          i + 1,
			Episodes:       len(block),
			MeanReward:     means[i],
			SmoothedReward: artifacts.SmoothedRewards[i],
		}
	}
	summary := Summarize(runID, artifacts.Episodes, means, artifacts.SmoothedRewards)
	if err := writeJSON(filepath.Join(runDir, summaryFile), summary); err != nil {
		return "", err
	}
	if err := writeRewardSeries(filepath.Join(runDir, rewardSeriesFile), points); err != nil {
		return "", err
	}
	return runDir, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	return cfg, ok, err
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(baseDir, runID, summaryFile), &summary)
	return summary, ok, err
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

// ListRunIndex returns the indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	entries, err := readRunIndex(baseDir)
	if err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Later appends win ties.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// readRunIndex returns the entries in the order they were first appended.
func readRunIndex(baseDir string) ([]RunIndexEntry, error) {
	var entries []RunIndexEntry
	ok, err := readJSON(filepath.Join(baseDir, runIndexFile), &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []RunIndexEntry{}, nil
	}
	return entries, nil
}

func writeRewardSeries(path string, points []SeriesPoint) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"block", "episodes", "mean_reward", "smoothed_reward"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{
			strconv.Itoa(p.Block),
			strconv.Itoa(p.Episodes),
			strconv.FormatFloat(p.MeanReward, 'g', -1, 64),
			strconv.FormatFloat(p.SmoothedReward, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadRewardSeries(baseDir, runID string) ([]SeriesPoint, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, rewardSeriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = 4
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return []SeriesPoint{}, true, nil
		}
		return nil, false, err
	}

	points := make([]SeriesPoint, 0, 128)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		point, err := parseSeriesRow(record)
		if err != nil {
			return nil, false, fmt.Errorf("reward series row %d: %w", len(points)+1, err)
		}
		points = append(points, point)
	}
	return points, true, nil
}

func parseSeriesRow(record []string) (SeriesPoint, error) {
	block, err := strconv.Atoi(record[0])
	if err != nil {
		return SeriesPoint{}, err
	}
	episodes, err := strconv.Atoi(record[1])
	if err != nil {
		return SeriesPoint{}, err
	}
	mean, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return SeriesPoint{}, err
	}
	smoothed, err := strconv.ParseFloat(record[3], 64)
	if err != nil {
		return SeriesPoint{}, err
	}
	return SeriesPoint{Block: block, Episodes: episodes, MeanReward: mean, SmoothedReward: smoothed}, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
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
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}
