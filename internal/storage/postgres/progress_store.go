package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// ProgressStore implements discovery.ProgressStore using Postgres.
type ProgressStore struct {
	db DB
}

// NewProgressStore wraps db.
func NewProgressStore(db DB) (*ProgressStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ProgressStore{db: db}, nil
}

// StartRun inserts the bookkeeping row for a run.
func (s *ProgressStore) StartRun(ctx context.Context, run discovery.Run) error {
	query := `
		INSERT INTO discovery_runs (id, started_at, state, dry_run, resume)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state
		WHERE discovery_runs.state <> EXCLUDED.state;
	`
	_, err := s.db.Exec(ctx, query, run.ID, run.StartedAt, string(run.State), run.DryRun, run.Resume)
	if err != nil {
		return fmt.Errorf("failed to upsert run start: %w", err)
	}
	return nil
}

// FinishRun records the terminal state and counters of a run.
func (s *ProgressStore) FinishRun(ctx context.Context, run discovery.Run) error {
	query := `
		UPDATE discovery_runs
		SET finished_at = $1, state = $2, processed = $3, skipped = $4,
			failed_items = $5, results = $6, inserted = $7, updated = $8,
			unchanged = $9, failed_records = $10, error_message = $11
		WHERE id = $12;
	`
	c := run.Counters
	_, err := s.db.Exec(ctx, query,
		run.FinishedAt, string(run.State), c.Processed, c.Skipped,
		c.FailedItems, c.Results, c.Inserted, c.Updated,
		c.Unchanged, c.FailedRecords, nullString(run.Error), run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// CompletedItems returns the keys of every completed work item.
func (s *ProgressStore) CompletedItems(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT item_key FROM discovery_progress`)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan progress row: %w", err)
		}
		done[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	return done, nil
}

// MarkItemCompleted records that every record of a work item persisted.
func (s *ProgressStore) MarkItemCompleted(ctx context.Context, runID, key string, at time.Time) error {
	query := `
		INSERT INTO discovery_progress (item_key, run_id, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (item_key) DO UPDATE
		SET run_id = EXCLUDED.run_id, completed_at = EXCLUDED.completed_at;
	`
	if _, err := s.db.Exec(ctx, query, key, runID, at); err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}
	return nil
}

// ResetItems clears item progress before a fresh run.
func (s *ProgressStore) ResetItems(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM discovery_progress`); err != nil {
		return fmt.Errorf("failed to reset progress: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *ProgressStore) ListRuns(ctx context.Context, limit int) ([]discovery.Run, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `
		SELECT id::text, started_at, finished_at, state, dry_run, resume,
			processed, skipped, failed_items, results, inserted, updated,
			unchanged, failed_records, COALESCE(error_message, '')
		FROM discovery_runs
		ORDER BY started_at DESC
		LIMIT $1;
	`
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]discovery.Run, 0)
	for rows.Next() {
		var (
			run   discovery.Run
			state string
		)
		c := &run.Counters
		err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FinishedAt, &state, &run.DryRun, &run.Resume,
			&c.Processed, &c.Skipped, &c.FailedItems, &c.Results, &c.Inserted, &c.Updated,
			&c.Unchanged, &c.FailedRecords, &run.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		run.State = discovery.RunState(state)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

var _ discovery.ProgressStore = (*ProgressStore)(nil)
