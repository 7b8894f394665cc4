// File: internal/orchestrator/runlog.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunLog is the per-run artifact written next to the binary. Each run
// overwrites the previous file; the history store keeps the long tail.
type RunLog struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Planned    int        `json:"planned"`
	Sent       int        `json:"sent"`
	Failed     int        `json:"failed"`
	Stopped    bool       `json:"stopped"`
	Results    []Result   `json:"results"`
	Log        []LogEntry `json:"log"`
}

// WriteRunLog persists the artifact atomically: write sidecar, then rename.
func WriteRunLog(path string, log RunLog) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create run log dir: %w", err)
		}
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run log: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("finalize run log: %w", err)
	}
	return nil
}

// ReadRunLog loads the last run's artifact.
func ReadRunLog(path string) (RunLog, error) {
	var log RunLog
	data, err := os.ReadFile(path)
	if err != nil {
		return log, err
	}
	if err := json.Unmarshal(data, &log); err != nil {
		return log, fmt.Errorf("decode run log: %w", err)
	}
	return log, nil
}
