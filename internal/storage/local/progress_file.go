package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

type itemProgress struct {
	RunID       string    `json:"run_id"`
	CompletedAt time.Time `json:"completed_at"`
}

type progressFile struct {
	Runs  []discovery.Run         `json:"runs"`
	Items map[string]itemProgress `json:"items"`
}

// ProgressFile is a discovery.ProgressStore kept in a single JSON file.
// Every mutation rewrites the file atomically.
type ProgressFile struct {
	mu   sync.Mutex
	path string
	data progressFile
}

// OpenProgressFile loads path, or starts empty when it does not exist.
func OpenProgressFile(path string) (*ProgressFile, error) {
	if path == "" {
		return nil, fmt.Errorf("progress file path is required")
	}
	p := &ProgressFile{
		path: path,
		data: progressFile{Items: make(map[string]itemProgress)},
	}
	// #nosec G304 -- the path comes from operator configuration.
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return p, nil
	case err != nil:
		return nil, fmt.Errorf("read progress file: %w", err)
	}
	if err := json.Unmarshal(raw, &p.data); err != nil {
		return nil, fmt.Errorf("decode progress file %s: %w", path, err)
	}
	if p.data.Items == nil {
		p.data.Items = make(map[string]itemProgress)
	}
	return p, nil
}

// StartRun appends a run record.
func (p *ProgressFile) StartRun(_ context.Context, run discovery.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Runs = append(p.data.Runs, run)
	return p.flush()
}

// FinishRun replaces the stored run with the same ID.
func (p *ProgressFile) FinishRun(_ context.Context, run discovery.Run) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.data.Runs {
		if p.data.Runs[i].ID == run.ID {
			p.data.Runs[i] = run
			return p.flush()
		}
	}
	return fmt.Errorf("run %s not found", run.ID)
}

// CompletedItems returns the keys of completed items.
func (p *ProgressFile) CompletedItems(_ context.Context) (map[string]struct{}, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]struct{}, len(p.data.Items))
	for k := range p.data.Items {
		out[k] = struct{}{}
	}
	return out, nil
}

// MarkItemCompleted records a completed item.
func (p *ProgressFile) MarkItemCompleted(_ context.Context, runID, key string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Items[key] = itemProgress{RunID: runID, CompletedAt: at.UTC()}
	return p.flush()
}

// ResetItems clears item progress.
func (p *ProgressFile) ResetItems(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Items = make(map[string]itemProgress)
	return p.flush()
}

// ListRuns returns the most recent runs, newest first.
func (p *ProgressFile) ListRuns(_ context.Context, limit int) ([]discovery.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	runs := append([]discovery.Run(nil), p.data.Runs...)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (p *ProgressFile) flush() error {
	raw, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode progress file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.path), 0o750); err != nil {
		return fmt.Errorf("create progress dir: %w", err)
	}
	return writeFileAtomic(p.path, bytes.NewReader(raw))
}

var _ discovery.ProgressStore = (*ProgressFile)(nil)
