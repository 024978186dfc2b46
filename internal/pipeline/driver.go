// Package pipeline drives a discovery run: it walks the worklist, queries the
// places provider, classifies and deduplicates results and persists each
// record in its own transaction.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/dedup"
	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/geo"
	"github.com/vindloodgieter/discovery/internal/metrics"
	"github.com/vindloodgieter/discovery/internal/places"
)

// ItemState is the lifecycle state of a work item within a run.
type ItemState string

// Item states.
const (
	ItemPending    ItemState = "pending"
	ItemFetched    ItemState = "fetched"
	ItemClassified ItemState = "classified"
	ItemPersisted  ItemState = "persisted"
	ItemFailed     ItemState = "failed"
	ItemSkipped    ItemState = "skipped"
)

// Options selects the run mode.
type Options struct {
	DryRun bool
	Resume bool
	// Limit caps the number of items processed after resume filtering.
	// Zero or negative means unlimited.
	Limit int
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID string             `json:"run_id"`
	State discovery.RunState `json:"state"`
	discovery.RunCounters
	// UniquePlaces counts distinct external IDs seen by the run.
	UniquePlaces int           `json:"unique_places"`
	FailedKeys   []string      `json:"failed_keys"`
	SnapshotURI  string        `json:"snapshot_uri,omitempty"`
	Duration     time.Duration `json:"duration"`
}

// Fields returns the summary as structured log fields.
func (s Summary) Fields() []zap.Field {
	return []zap.Field{
		zap.String("run_id", s.RunID),
		zap.String("state", string(s.State)),
		zap.Int("processed", s.Processed),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed_items", s.FailedItems),
		zap.Int("results", s.Results),
		zap.Int("unique_places", s.UniquePlaces),
		zap.Int("inserted", s.Inserted),
		zap.Int("updated", s.Updated),
		zap.Int("unchanged", s.Unchanged),
		zap.Int("failed_records", s.FailedRecords),
		zap.Duration("duration", s.Duration),
	}
}

// SnapshotFactory opens the backup writer for a run.
type SnapshotFactory func(runID string) discovery.SnapshotWriter

// Config wires the driver's collaborators. Businesses and Progress may be nil
// only for dry runs.
type Config struct {
	Table      *geo.Table
	Searcher   discovery.Searcher
	Classifier discovery.Classifier
	Businesses discovery.BusinessStore
	Progress   discovery.ProgressStore
	Snapshots  SnapshotFactory
	Publisher  discovery.Publisher
	Topic      string
	Clock      discovery.Clock
	IDs        discovery.IDGenerator
	// DryRunOutput receives one JSON line per would-be record.
	DryRunOutput io.Writer
	Logger       *zap.Logger
}

// Driver runs the discovery pipeline sequentially.
type Driver struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and builds a Driver.
func New(cfg Config) (*Driver, error) {
	switch {
	case cfg.Table == nil:
		return nil, errors.New("pipeline: geography table is required")
	case cfg.Searcher == nil:
		return nil, errors.New("pipeline: searcher is required")
	case cfg.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case cfg.Clock == nil:
		return nil, errors.New("pipeline: clock is required")
	case cfg.IDs == nil:
		return nil, errors.New("pipeline: id generator is required")
	}
	if cfg.DryRunOutput == nil {
		cfg.DryRunOutput = io.Discard
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{cfg: cfg, logger: logger}, nil
}

type run struct {
	d        *Driver
	opts     Options
	record   discovery.Run
	tracker  *dedup.Tracker
	snapshot discovery.SnapshotWriter
	summary  Summary
	encoder  *json.Encoder
}

// Run processes items in order. It returns a non-nil error only when the run
// could not start or was aborted; per-item and per-record failures are
// reported in the Summary.
func (d *Driver) Run(ctx context.Context, items []discovery.WorkItem, opts Options) (Summary, error) {
	if !opts.DryRun && (d.cfg.Businesses == nil || d.cfg.Progress == nil) {
		return Summary{State: discovery.RunIdle}, errors.New("pipeline: stores are required unless dry-run")
	}
	runID, err := d.cfg.IDs.NewID()
	if err != nil {
		return Summary{State: discovery.RunIdle}, fmt.Errorf("allocate run id: %w", err)
	}
	start := d.cfg.Clock.Now()
	r := &run{
		d:    d,
		opts: opts,
		record: discovery.Run{
			ID:        runID,
			StartedAt: start,
			State:     discovery.RunRunning,
			DryRun:    opts.DryRun,
			Resume:    opts.Resume,
		},
		tracker: dedup.NewTracker(d.cfg.Clock.Now),
		summary: Summary{RunID: runID, State: discovery.RunIdle, FailedKeys: make([]string, 0)},
		encoder: json.NewEncoder(d.cfg.DryRunOutput),
	}

	pending, err := r.prepare(ctx, items)
	if err != nil {
		return r.summary, err
	}
	r.summary.State = discovery.RunRunning
	d.logger.Info("discovery run started",
		zap.String("run_id", runID),
		zap.Int("items", len(pending)),
		zap.Int("skipped", r.summary.Skipped),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("resume", opts.Resume),
	)

	runErr := r.process(ctx, pending)
	return r.finish(ctx, start, runErr)
}

// prepare resolves resume progress, resets it for fresh runs and records the
// run start.
func (r *run) prepare(ctx context.Context, items []discovery.WorkItem) ([]discovery.WorkItem, error) {
	cfg := r.d.cfg
	completed := map[string]struct{}{}
	if r.opts.Resume && cfg.Progress != nil {
		done, err := cfg.Progress.CompletedItems(ctx)
		if err != nil {
			return nil, fmt.Errorf("load progress: %w", err)
		}
		completed = done
	}
	if !r.opts.DryRun {
		if !r.opts.Resume {
			if err := cfg.Progress.ResetItems(ctx); err != nil {
				return nil, fmt.Errorf("reset progress: %w", err)
			}
		}
		if err := cfg.Progress.StartRun(ctx, r.record); err != nil {
			return nil, fmt.Errorf("record run start: %w", err)
		}
		if cfg.Snapshots != nil {
			r.snapshot = cfg.Snapshots(r.record.ID)
		}
	}

	pending := make([]discovery.WorkItem, 0, len(items))
	for _, item := range items {
		if _, ok := completed[item.Key()]; ok {
			r.summary.Skipped++
			metrics.ObserveWorkItem(string(ItemSkipped))
			continue
		}
		pending = append(pending, item)
	}
	return geo.Truncate(pending, r.opts.Limit), nil
}

func (r *run) process(ctx context.Context, items []discovery.WorkItem) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		state, err := r.processItem(ctx, item)
		if err != nil {
			return err
		}
		r.summary.Processed++
		metrics.ObserveWorkItem(string(state))
		if state == ItemFailed {
			r.summary.FailedItems++
			r.summary.FailedKeys = append(r.summary.FailedKeys, item.Key())
		}
	}
	return nil
}

// processItem returns the final item state. A non-nil error means the run
// must abort.
func (r *run) processItem(ctx context.Context, item discovery.WorkItem) (ItemState, error) {
	cfg := r.d.cfg
	logger := r.d.logger.With(
		zap.String("item", item.Key()),
		zap.Int("position", item.Position),
	)

	raws, err := cfg.Searcher.Search(ctx, places.Query(item))
	if err != nil {
		if ctx.Err() != nil {
			return ItemFailed, ctx.Err()
		}
		logger.Warn("search failed",
			zap.Error(err),
			zap.Bool("retryable", places.Retryable(err)),
		)
		return ItemFailed, nil
	}
	r.summary.Results += len(raws)
	logger.Debug("item fetched", zap.String("state", string(ItemFetched)), zap.Int("results", len(raws)))

	failed := false
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return ItemFailed, err
		}
		b := Normalize(cfg.Table, cfg.Classifier, item, raw, cfg.Clock.Now())
		merged, sighting := r.tracker.Observe(b)
		logger.Debug("record classified",
			zap.String("state", string(ItemClassified)),
			zap.String("external_id", merged.ExternalID),
			zap.Strings("service_types", merged.ServiceTypes),
			zap.Stringer("sighting", sighting),
		)

		if r.opts.DryRun {
			if err := r.encoder.Encode(merged); err != nil {
				return ItemFailed, fmt.Errorf("write dry-run output: %w", err)
			}
			continue
		}
		if err := r.persist(ctx, logger, merged, sighting); err != nil {
			if ctx.Err() != nil {
				return ItemFailed, ctx.Err()
			}
			failed = true
		}
	}

	switch {
	case failed:
		return ItemFailed, nil
	case r.opts.DryRun:
		return ItemClassified, nil
	}
	if err := cfg.Progress.MarkItemCompleted(ctx, r.record.ID, item.Key(), cfg.Clock.Now()); err != nil {
		if ctx.Err() != nil {
			return ItemFailed, ctx.Err()
		}
		logger.Warn("progress not recorded; item will be reprocessed on resume", zap.Error(err))
	}
	return ItemPersisted, nil
}

func (r *run) persist(ctx context.Context, logger *zap.Logger, b discovery.Business, sighting dedup.Sighting) error {
	cfg := r.d.cfg
	res, err := cfg.Businesses.UpsertBusiness(ctx, b)
	if err != nil {
		r.summary.FailedRecords++
		metrics.ObserveRecord("failed")
		if sighting == dedup.SightingFirst {
			r.tracker.Forget(b.ExternalID)
		}
		logger.Error("persist record failed", zap.String("external_id", b.ExternalID), zap.Error(err))
		return err
	}
	metrics.ObserveRecord(string(res.Outcome))

	switch res.Outcome {
	case discovery.OutcomeInserted:
		r.summary.Inserted++
		b.Slug = res.Slug
		r.afterInsert(ctx, logger, b)
	case discovery.OutcomeUpdated:
		r.summary.Updated++
	case discovery.OutcomeUnchanged:
		r.summary.Unchanged++
	}
	return nil
}

// afterInsert feeds the snapshot and publishes the discovery event. Neither
// affects the record's persisted state, so failures are only logged.
func (r *run) afterInsert(ctx context.Context, logger *zap.Logger, b discovery.Business) {
	cfg := r.d.cfg
	if r.snapshot != nil {
		if err := r.snapshot.Append(ctx, b); err != nil {
			logger.Warn("snapshot append failed", zap.String("slug", b.Slug), zap.Error(err))
		}
	}
	if cfg.Publisher == nil || cfg.Topic == "" {
		return
	}
	event := discovery.BusinessEvent{
		Type:       discovery.EventBusinessDiscovered,
		RunID:      r.record.ID,
		OccurredAt: cfg.Clock.Now(),
		Business:   b,
	}
	if _, err := cfg.Publisher.Publish(ctx, cfg.Topic, event); err != nil {
		metrics.ObserveEvent("error")
		logger.Warn("publish event failed", zap.String("slug", b.Slug), zap.Error(err))
		return
	}
	metrics.ObserveEvent("ok")
}

func (r *run) finish(ctx context.Context, start time.Time, runErr error) (Summary, error) {
	cfg := r.d.cfg
	// Bookkeeping must land even when the run was canceled.
	bg := context.WithoutCancel(ctx)

	r.summary.State = discovery.RunCompleted
	if runErr != nil {
		r.summary.State = discovery.RunAborted
		r.record.Error = runErr.Error()
	}

	if r.snapshot != nil {
		if err := r.snapshot.Close(bg); err != nil {
			r.d.logger.Warn("snapshot close failed", zap.Error(err))
		}
		if u, ok := r.snapshot.(interface{ URI() string }); ok {
			r.summary.SnapshotURI = u.URI()
		}
	}

	r.summary.UniquePlaces = r.tracker.Len()
	end := cfg.Clock.Now()
	r.summary.Duration = end.Sub(start)
	r.record.State = r.summary.State
	r.record.FinishedAt = &end
	r.record.Counters = r.summary.RunCounters

	if !r.opts.DryRun {
		if err := cfg.Progress.FinishRun(bg, r.record); err != nil {
			r.d.logger.Warn("record run finish failed", zap.Error(err))
		}
	}

	r.d.logger.Info("discovery run finished", r.summary.Fields()...)
	if runErr != nil {
		return r.summary, fmt.Errorf("run %s aborted: %w", r.record.ID, runErr)
	}
	return r.summary, nil
}
