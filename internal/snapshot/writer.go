// Package snapshot writes the per-run backup artifact of newly inserted
// businesses through a blob store.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// DefaultFlushEvery is used when Config.FlushEvery is not positive.
const DefaultFlushEvery = 25

// Config controls a Writer.
type Config struct {
	// Prefix is the directory inside the blob store, e.g. "snapshots".
	Prefix     string
	FlushEvery int
}

// Path returns the object path of the snapshot for runID.
func Path(prefix, runID string) string {
	name := "discovery-" + runID + ".json"
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// Writer accumulates records and rewrites the whole JSON array on every
// flush, so the artifact is always a valid document.
type Writer struct {
	mu         sync.Mutex
	store      discovery.BlobStore
	path       string
	flushEvery int
	logger     *zap.Logger

	records []discovery.Business
	pending int
	flushed bool
	uri     string
}

// NewWriter returns a Writer for one run.
func NewWriter(store discovery.BlobStore, runID string, cfg Config, logger *zap.Logger) *Writer {
	if cfg.FlushEvery <= 0 {
		cfg.FlushEvery = DefaultFlushEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		store:      store,
		path:       Path(cfg.Prefix, runID),
		flushEvery: cfg.FlushEvery,
		logger:     logger,
		records:    make([]discovery.Business, 0),
	}
}

// Append adds b and flushes when the batch is full.
func (w *Writer) Append(ctx context.Context, b discovery.Business) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, b)
	w.pending++
	if w.pending >= w.flushEvery {
		return w.flush(ctx)
	}
	return nil
}

// Close writes any pending records. An empty run still produces an empty
// array so every run leaves an artifact.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == 0 && w.flushed {
		return nil
	}
	return w.flush(ctx)
}

// URI returns the location of the last successful flush.
func (w *Writer) URI() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uri
}

func (w *Writer) flush(ctx context.Context) error {
	payload, err := json.MarshalIndent(w.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	uri, err := w.store.PutObject(ctx, w.path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", w.path, err)
	}
	w.pending = 0
	w.flushed = true
	w.uri = uri
	w.logger.Debug("snapshot flushed", zap.String("uri", uri), zap.Int("records", len(w.records)))
	return nil
}

var _ discovery.SnapshotWriter = (*Writer)(nil)
