package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

func TestProgressStoreLifecycle(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProgressStore(mock)
	require.NoError(t, err)

	ctx := context.Background()
	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)
	runID := "0190c8e4-3b6e-7d4c-9f7a-2f1c3c0d1e2f"

	mock.ExpectExec("DELETE FROM discovery_progress").WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec("INSERT INTO discovery_runs").
		WithArgs(runID, started, "running", false, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO discovery_progress").
		WithArgs("utrecht|utrecht|loodgieter", runID, finished).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT item_key FROM discovery_progress")).
		WillReturnRows(pgxmock.NewRows([]string{"item_key"}).AddRow("utrecht|utrecht|loodgieter"))
	mock.ExpectExec("UPDATE discovery_runs").
		WithArgs(&finished, "completed", 1, 0, 0, 3, 2, 1, 0, 0, pgxmock.AnyArg(), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.ResetItems(ctx))
	run := discovery.Run{ID: runID, StartedAt: started, State: discovery.RunRunning}
	require.NoError(t, store.StartRun(ctx, run))
	require.NoError(t, store.MarkItemCompleted(ctx, runID, "utrecht|utrecht|loodgieter", finished))

	done, err := store.CompletedItems(ctx)
	require.NoError(t, err)
	assert.Contains(t, done, "utrecht|utrecht|loodgieter")

	run.State = discovery.RunCompleted
	run.FinishedAt = &finished
	run.Counters = discovery.RunCounters{Processed: 1, Results: 3, Inserted: 2, Updated: 1}
	require.NoError(t, store.FinishRun(ctx, run))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewProgressStore(mock)
	require.NoError(t, err)

	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM discovery_runs").WithArgs(5).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "started_at", "finished_at", "state", "dry_run", "resume",
			"processed", "skipped", "failed_items", "results", "inserted", "updated",
			"unchanged", "failed_records", "error_message",
		}).AddRow("run-1", started, (*time.Time)(nil), "aborted", false, true,
			2, 1, 1, 5, 3, 0, 2, 0, "context canceled"))

	runs, err := store.ListRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, discovery.RunAborted, runs[0].State)
	assert.Nil(t, runs[0].FinishedAt)
	assert.Equal(t, 3, runs[0].Counters.Inserted)
	assert.Equal(t, "context canceled", runs[0].Error)
	require.NoError(t, mock.ExpectationsWereMet())
}
