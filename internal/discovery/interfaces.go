package discovery

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrSlugSpaceExhausted is returned when no free slug suffix could be found.
// It indicates a logic error rather than an expected runtime condition.
var ErrSlugSpaceExhausted = errors.New("slug disambiguation space exhausted")

// Searcher runs one text query against the places provider.
type Searcher interface {
	Search(ctx context.Context, query string) ([]RawPlace, error)
}

// Classifier maps a place name and its category tags to labels.
type Classifier interface {
	Classify(name string, tags []string) Classification
}

// BusinessStore persists Business records. Every upsert is its own
// transaction so a crash never loses previously written records.
type BusinessStore interface {
	UpsertBusiness(ctx context.Context, b Business) (UpsertResult, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	GetBySlug(ctx context.Context, slug string) (Business, error)
	ListBusinesses(ctx context.Context, filter ListFilter) ([]Business, error)
	CountByProvince(ctx context.Context) ([]ProvinceCount, error)
	CountByServiceType(ctx context.Context) ([]ServiceTypeCount, error)
}

// ProgressStore records which work items completed so a run can resume.
type ProgressStore interface {
	StartRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, run Run) error
	CompletedItems(ctx context.Context) (map[string]struct{}, error)
	MarkItemCompleted(ctx context.Context, runID string, key string, at time.Time) error
	ResetItems(ctx context.Context) error
}

// RunLister reads run bookkeeping, newest first.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// SnapshotWriter collects newly inserted records into a backup artifact.
type SnapshotWriter interface {
	Append(ctx context.Context, b Business) error
	Close(ctx context.Context) error
}

// Publisher pushes discovery events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
