package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// maxRunHistory bounds the persisted run log
const maxRunHistory = 90

// RunRecord is one scheduled scan
type RunRecord struct {
	Date         string    `json:"date"` // trading day, YYYY-MM-DD
	RunID        string    `json:"run_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Scanned      int       `json:"scanned"`
	Failed       int       `json:"failed"`
	Hits         int       `json:"hits"`
	ReportPath   string    `json:"report_path,omitempty"`
	RemotePath   string    `json:"remote_path,omitempty"`
	Published    bool      `json:"published"`
	Status       string    `json:"status"` // "ok", "publish_failed", "error"
	ErrorMessage string    `json:"error,omitempty"`
}

// RunTracker keeps the run log, persisted as JSON under dataDir.
// An empty dataDir keeps the log in memory only.
type RunTracker struct {
	path string
	runs []RunRecord
	mu   sync.RWMutex
}

// NewRunTracker loads the run log from dataDir
func NewRunTracker(dataDir string) (*RunTracker, error) {
	t := &RunTracker{}
	if dataDir == "" {
		return t, nil
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	t.path = filepath.Join(dataDir, "runs.json")

	data, err := os.ReadFile(t.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return t, nil
	case err != nil:
		return nil, fmt.Errorf("read run log: %w", err)
	}
	if err := json.Unmarshal(data, &t.runs); err != nil {
		return nil, fmt.Errorf("parse run log: %w", err)
	}
	return t, nil
}

// Record appends a run and saves the log
func (t *RunTracker) Record(rec RunRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.runs = append(t.runs, rec)
	if len(t.runs) > maxRunHistory {
		t.runs = t.runs[len(t.runs)-maxRunHistory:]
	}
	return t.save()
}

// RanOn reports whether a run completed successfully on date
func (t *RunTracker) RanOn(date string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, r := range t.runs {
		if r.Date == date && r.Status != "error" {
			return true
		}
	}
	return false
}

// Last returns the most recent run
func (t *RunTracker) Last() (RunRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.runs) == 0 {
		return RunRecord{}, false
	}
	return t.runs[len(t.runs)-1], true
}

// Runs returns a copy of the run log, oldest first
func (t *RunTracker) Runs() []RunRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]RunRecord, len(t.runs))
	copy(out, t.runs)
	return out
}

func (t *RunTracker) save() error {
	if t.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(t.runs, "", "  ")
	if err != nil {
		return err
	}
	tmp := t.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return os.Rename(tmp, t.path)
}
