package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vindloodgieter/discovery/internal/classify"
	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/geo"
	"github.com/vindloodgieter/discovery/internal/places"
	pubmemory "github.com/vindloodgieter/discovery/internal/publisher/memory"
	"github.com/vindloodgieter/discovery/internal/snapshot"
	"github.com/vindloodgieter/discovery/internal/storage/memory"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]discovery.RawPlace
	errs    map[string]error
	queries []string
	onCall  func(query string)
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		results: make(map[string][]discovery.RawPlace),
		errs:    make(map[string]error),
	}
}

func (f *fakeSearcher) on(item discovery.WorkItem, raws ...discovery.RawPlace) {
	f.results[places.Query(item)] = raws
}

func (f *fakeSearcher) fail(item discovery.WorkItem, err error) {
	f.errs[places.Query(item)] = err
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]discovery.RawPlace, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	cb := f.onCall
	f.mu.Unlock()
	if cb != nil {
		cb(query)
	}
	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	return f.results[query], nil
}

func (f *fakeSearcher) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type harness struct {
	searcher   *fakeSearcher
	businesses *memory.BusinessStore
	progress   *memory.ProgressStore
	blobs      *memory.BlobStore
	publisher  *pubmemory.Publisher
	driver     *Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &stepClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	h := &harness{
		searcher:   newFakeSearcher(),
		businesses: memory.NewBusinessStore(clock.Now),
		progress:   memory.NewProgressStore(),
		blobs:      memory.NewBlobStore(),
		publisher:  pubmemory.New(),
	}
	d, err := New(Config{
		Table:      geo.Default(),
		Searcher:   h.searcher,
		Classifier: classify.Default(),
		Businesses: h.businesses,
		Progress:   h.progress,
		Snapshots: func(runID string) discovery.SnapshotWriter {
			return snapshot.NewWriter(h.blobs, runID, snapshot.Config{Prefix: "snapshots", FlushEvery: 1}, nil)
		},
		Publisher: h.publisher,
		Topic:     "business-events",
		Clock:     clock,
		IDs:       &seqIDs{},
	})
	require.NoError(t, err)
	h.driver = d
	return h
}

func worklist(t *testing.T, f geo.Filter, terms ...string) []discovery.WorkItem {
	t.Helper()
	items, err := geo.Default().Worklist(terms, f)
	require.NoError(t, err)
	return items
}

func rating(v float64) *float64 { return &v }

func TestRunUtrechtScenario(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", City: "Utrecht"}, "loodgieter")
	require.Len(t, items, 1)
	h.searcher.on(items[0], discovery.RawPlace{
		ExternalID:       "abc123",
		Name:             "Jansen Spoed Loodgieter",
		FormattedAddress: "Kade 1, Utrecht",
	})

	summary, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, discovery.RunCompleted, summary.State)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, []string{"loodgieter Utrecht Utrecht Nederland"}, h.searcher.calls())

	got, err := h.businesses.GetBySlug(context.Background(), "jansen-spoed-loodgieter-utrecht")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.ExternalID)
	assert.Contains(t, got.ServiceTypes, "Loodgieter")
	assert.Contains(t, got.ServiceTypes, "Spoed Loodgieter")
	assert.Equal(t, "Utrecht", got.Province)
	assert.Equal(t, "UT", got.ProvinceAbbr)
	assert.Equal(t, discovery.StatusDiscovered, got.Status)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	event, ok := msgs[0].Payload.(discovery.BusinessEvent)
	require.True(t, ok)
	assert.Equal(t, discovery.EventBusinessDiscovered, event.Type)
	assert.Equal(t, "jansen-spoed-loodgieter-utrecht", event.Business.Slug)

	raw, ok := h.blobs.Object("snapshots/discovery-" + summary.RunID + ".json")
	require.True(t, ok)
	var snap []discovery.Business
	require.NoError(t, json.Unmarshal(raw, &snap))
	require.Len(t, snap, 1)
	assert.Equal(t, "memory://snapshots/discovery-"+summary.RunID+".json", summary.SnapshotURI)

	run, ok := h.progress.Run(summary.RunID)
	require.True(t, ok)
	assert.Equal(t, discovery.RunCompleted, run.State)
	assert.Equal(t, 1, run.Counters.Inserted)
}

func TestRunIsIdempotent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", City: "Utrecht"}, "loodgieter", "cv monteur")
	h.searcher.on(items[0],
		discovery.RawPlace{ExternalID: "a", Name: "Jansen", FormattedAddress: "Kade 1, Utrecht", Rating: rating(4.2)},
		discovery.RawPlace{ExternalID: "b", Name: "De Vries CV", FormattedAddress: "Biltstraat 3, 3572 AB Utrecht"},
	)
	h.searcher.on(items[1],
		discovery.RawPlace{ExternalID: "b", Name: "De Vries CV", FormattedAddress: "Biltstraat 3, 3572 AB Utrecht"},
	)

	first, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	before := h.businesses.All()

	second, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 3, second.Unchanged, "every sighting, including the repeat of b")
	assert.Equal(t, before, h.businesses.All())
	assert.Len(t, h.publisher.Messages(), 2, "events are only published on insert")
}

func TestRunDedupLaterRatingWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht"}, "loodgieter")
	h.searcher.on(items[0], discovery.RawPlace{
		ExternalID: "dup", Name: "Jansen", FormattedAddress: "Kade 1, Utrecht", Rating: rating(4.0),
	})
	h.searcher.on(items[1], discovery.RawPlace{
		ExternalID: "dup", Name: "Jansen", FormattedAddress: "Kade 1, Utrecht", Rating: rating(4.7),
	})

	summary, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)

	all := h.businesses.All()
	require.Len(t, all, 1)
	require.NotNil(t, all["dup"].Rating)
	assert.InDelta(t, 4.7, *all["dup"].Rating, 1e-9)
	assert.Equal(t, "jansen-utrecht", all["dup"].Slug)
	assert.Equal(t, 1, summary.UniquePlaces)
}

func TestRunConflictingSightingsConvergeOnRerun(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht"}, "loodgieter")
	h.searcher.on(items[0], discovery.RawPlace{
		ExternalID: "dup", Name: "Jansen", FormattedAddress: "Kade 1, Utrecht", Rating: rating(4.0),
	})
	h.searcher.on(items[1], discovery.RawPlace{
		ExternalID: "dup", Name: "Jansen", FormattedAddress: "Kade 1, Utrecht", Rating: rating(4.7),
	})

	_, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	first := h.businesses.All()["dup"]

	second, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated, "the earlier sighting overwrites, the later one restores")
	assert.Equal(t, 1, second.UniquePlaces)

	got := h.businesses.All()["dup"]
	require.NotNil(t, got.Rating)
	assert.InDelta(t, 4.7, *got.Rating, 1e-9)
	assert.True(t, got.UpdatedAt.After(first.UpdatedAt))
	got.UpdatedAt, first.UpdatedAt = time.Time{}, time.Time{}
	assert.Equal(t, first, got)
	assert.Len(t, h.publisher.Messages(), 1)
}

func TestRunSlugCollisionsResolveToDistinctSlugs(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", City: "Utrecht"}, "loodgieter")
	h.searcher.on(items[0],
		discovery.RawPlace{ExternalID: "one", Name: "Jansen Loodgietersbedrijf", FormattedAddress: "Kade 1, Utrecht"},
		discovery.RawPlace{ExternalID: "two", Name: "Jansen Loodgietersbedrijf", FormattedAddress: "Kade 9, Utrecht"},
	)

	_, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)

	all := h.businesses.All()
	assert.Equal(t, "jansen-loodgietersbedrijf-utrecht", all["one"].Slug)
	assert.Equal(t, "jansen-loodgietersbedrijf-utrecht-2", all["two"].Slug)
}

func seedProvince(h *harness, items []discovery.WorkItem) {
	for i, item := range items {
		h.searcher.on(item, discovery.RawPlace{
			ExternalID:       fmt.Sprintf("place-%d", i),
			Name:             fmt.Sprintf("Loodgieter %d", i),
			FormattedAddress: "Markt 1, " + item.City,
		})
	}
}

func stateOf(all map[string]discovery.Business) map[string]string {
	out := make(map[string]string, len(all))
	for id, b := range all {
		out[id] = fmt.Sprintf("%s|%s|%s|%v", b.Slug, b.City, b.Province, b.ServiceTypes)
	}
	return out
}

func TestRunResumeProcessesRemainingItems(t *testing.T) {
	t.Parallel()

	items := worklist(t, geo.Filter{Province: "Utrecht", Limit: 4}, "loodgieter")
	require.Len(t, items, 4)

	full := newHarness(t)
	seedProvince(full, items)
	_, err := full.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)

	h := newHarness(t)
	seedProvince(h, items)
	_, err = h.driver.Run(context.Background(), items[:2], Options{})
	require.NoError(t, err)

	resumed, err := h.driver.Run(context.Background(), items, Options{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, 2, resumed.Skipped)
	assert.Equal(t, 2, resumed.Processed)
	assert.Equal(t, 2, resumed.Inserted)

	calls := h.searcher.calls()
	require.Len(t, calls, 4)
	assert.Equal(t, places.Query(items[2]), calls[2])
	assert.Equal(t, places.Query(items[3]), calls[3])

	assert.Equal(t, stateOf(full.businesses.All()), stateOf(h.businesses.All()))
}

func TestRunResumeAppliesLimitAfterSkipping(t *testing.T) {
	t.Parallel()

	items := worklist(t, geo.Filter{Province: "Utrecht", Limit: 4}, "loodgieter")
	h := newHarness(t)
	seedProvince(h, items)

	_, err := h.driver.Run(context.Background(), items[:1], Options{})
	require.NoError(t, err)
	summary, err := h.driver.Run(context.Background(), items, Options{Resume: true, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 2, summary.Processed)
	assert.Len(t, h.businesses.All(), 3)
}

func TestRunIsolatesSearchFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", Limit: 3}, "loodgieter")
	seedProvince(h, items)
	h.searcher.fail(items[1], &places.StatusError{Endpoint: "textsearch", Status: "OVER_QUERY_LIMIT", Err: places.ErrQuotaExceeded})

	summary, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, discovery.RunCompleted, summary.State)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.FailedItems)
	assert.Equal(t, []string{items[1].Key()}, summary.FailedKeys)
	assert.Equal(t, 2, summary.Inserted)

	done, err := h.progress.CompletedItems(context.Background())
	require.NoError(t, err)
	assert.Contains(t, done, items[0].Key())
	assert.NotContains(t, done, items[1].Key())
	assert.Contains(t, done, items[2].Key())
}

func TestRunIsolatesRecordFailures(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", City: "Utrecht"}, "loodgieter")
	h.searcher.on(items[0],
		discovery.RawPlace{ExternalID: "bad", Name: "Kapot BV", FormattedAddress: "Kade 1, Utrecht"},
		discovery.RawPlace{ExternalID: "good", Name: "Heel BV", FormattedAddress: "Kade 2, Utrecht"},
	)
	h.businesses.FailFor = map[string]error{"bad": errors.New("connection reset")}

	summary, err := h.driver.Run(context.Background(), items, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedRecords)
	assert.Equal(t, 1, summary.FailedItems)
	assert.Equal(t, 1, summary.Inserted)
	assert.Contains(t, h.businesses.All(), "good")

	done, err := h.progress.CompletedItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, done, "an item with a failed record must be retried on resume")
}

func TestRunDryRunWritesWithoutPersisting(t *testing.T) {
	t.Parallel()

	searcher := newFakeSearcher()
	items := worklist(t, geo.Filter{Province: "Utrecht", City: "Utrecht"}, "loodgieter")
	searcher.on(items[0], discovery.RawPlace{
		ExternalID: "abc123", Name: "Jansen CV Service", FormattedAddress: "Kade 1, 3511 AB Utrecht",
	})
	var out bytes.Buffer
	d, err := New(Config{
		Table:        geo.Default(),
		Searcher:     searcher,
		Classifier:   classify.Default(),
		Clock:        &stepClock{},
		IDs:          &seqIDs{},
		DryRunOutput: &out,
	})
	require.NoError(t, err)

	summary, err := d.Run(context.Background(), items, Options{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, discovery.RunCompleted, summary.State)
	assert.Equal(t, 0, summary.Inserted)
	assert.Empty(t, summary.SnapshotURI)

	scanner := bufio.NewScanner(&out)
	require.True(t, scanner.Scan())
	var b discovery.Business
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &b))
	assert.Equal(t, "jansen-cv-service-utrecht", b.Slug)
	assert.Equal(t, "3511 AB", b.Postcode)
	assert.Equal(t, []string{"Loodgieter", "CV Installatie"}, b.ServiceTypes)
	assert.False(t, scanner.Scan())

	_, err = d.Run(context.Background(), items, Options{})
	assert.Error(t, err, "a persisting run needs stores")
}

func TestRunAbortsOnCancellation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	items := worklist(t, geo.Filter{Province: "Utrecht", Limit: 3}, "loodgieter")
	seedProvince(h, items)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.searcher.onCall = func(query string) {
		if query == places.Query(items[1]) {
			cancel()
		}
	}

	summary, err := h.driver.Run(ctx, items, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, discovery.RunAborted, summary.State)
	assert.Equal(t, 1, summary.Processed)
	assert.Len(t, h.businesses.All(), 1, "records written before cancellation stay intact")

	run, ok := h.progress.Run(summary.RunID)
	require.True(t, ok)
	assert.Equal(t, discovery.RunAborted, run.State)
	assert.NotEmpty(t, run.Error)
}
