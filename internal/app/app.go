// Package app initializes and holds long-lived application services, acting
// as the dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/vindloodgieter/discovery/internal/classify"
	"github.com/vindloodgieter/discovery/internal/clock/system"
	"github.com/vindloodgieter/discovery/internal/config"
	"github.com/vindloodgieter/discovery/internal/discovery"
	"github.com/vindloodgieter/discovery/internal/enrich"
	collyfetcher "github.com/vindloodgieter/discovery/internal/fetcher/colly"
	"github.com/vindloodgieter/discovery/internal/geo"
	"github.com/vindloodgieter/discovery/internal/id/uuid"
	"github.com/vindloodgieter/discovery/internal/metrics"
	"github.com/vindloodgieter/discovery/internal/pipeline"
	"github.com/vindloodgieter/discovery/internal/places"
	"github.com/vindloodgieter/discovery/internal/policy/ratelimit"
	pubsubpublisher "github.com/vindloodgieter/discovery/internal/publisher/pubsub"
	"github.com/vindloodgieter/discovery/internal/snapshot"
	gcsstore "github.com/vindloodgieter/discovery/internal/storage/gcs"
	"github.com/vindloodgieter/discovery/internal/storage/local"
	"github.com/vindloodgieter/discovery/internal/storage/memory"
	"github.com/vindloodgieter/discovery/internal/storage/postgres"
)

// Options selects which backends New wires.
type Options struct {
	// NoDB swaps Postgres for an in-memory business store and the local
	// progress file.
	NoDB bool
}

// App holds the shared, long-lived services for one CLI invocation.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Table  *geo.Table

	Businesses discovery.BusinessStore
	Progress   discovery.ProgressStore
	Runs       discovery.RunLister
	// Places is nil when no API key is configured.
	Places    *places.Client
	Blobs     discovery.BlobStore
	Publisher discovery.Publisher
	Clock     discovery.Clock
	IDs       discovery.IDGenerator

	pool    *pgxpool.Pool
	closers []closer
}

type closer struct {
	name string
	fn   func() error
}

// New creates and initializes an App from cfg. It fails fast if any
// configured backend cannot be initialized, releasing what was already
// opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{
		Config: cfg,
		Logger: logger,
		Clock:  system.New(),
		IDs:    uuid.New(),
	}
	logger.Info("initializing application services", zap.Bool("no_db", opts.NoDB))

	steps := []func(context.Context, Options) error{
		a.initGeography,
		a.initStores,
		a.initPlaces,
		a.initBlobs,
		a.initPublisher,
	}
	for _, step := range steps {
		if err := step(ctx, opts); err != nil {
			a.Close()
			return nil, err
		}
	}
	logger.Info("application services initialized")
	return a, nil
}

func (a *App) initGeography(_ context.Context, _ Options) error {
	if a.Config.Geography.File == "" {
		a.Table = geo.Default()
		return nil
	}
	table, err := geo.LoadTable(a.Config.Geography.File)
	if err != nil {
		return fmt.Errorf("load geography: %w", err)
	}
	a.Logger.Info("using geography override", zap.String("file", a.Config.Geography.File))
	a.Table = table
	return nil
}

func (a *App) initStores(ctx context.Context, opts Options) error {
	if opts.NoDB || a.Config.DB.DSN == "" {
		progress, err := local.OpenProgressFile(a.Config.Progress.File)
		if err != nil {
			return fmt.Errorf("open progress file: %w", err)
		}
		a.Businesses = memory.NewBusinessStore(nil)
		a.Progress = progress
		a.Runs = progress
		a.Logger.Info("using in-memory business store", zap.String("progress_file", a.Config.Progress.File))
		return nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:             a.Config.DB.DSN,
		MaxConns:        a.Config.DB.MaxConns,
		MinConns:        a.Config.DB.MinConns,
		MaxConnLifetime: a.Config.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	a.pool = pool
	a.closers = append(a.closers, closer{name: "database", fn: func() error { pool.Close(); return nil }})

	if a.Config.DB.MigrateOnStart {
		if _, err := postgres.Migrate(ctx, pool, a.Logger); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
	}
	businesses, err := postgres.NewBusinessStore(pool, nil, a.Logger)
	if err != nil {
		return fmt.Errorf("init business store: %w", err)
	}
	progress, err := postgres.NewProgressStore(pool)
	if err != nil {
		return fmt.Errorf("init progress store: %w", err)
	}
	a.Businesses = businesses
	a.Progress = progress
	a.Runs = progress
	return nil
}

func (a *App) initPlaces(_ context.Context, _ Options) error {
	pc := a.Config.Places
	if pc.APIKey == "" {
		return nil
	}
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: pc.UserAgent,
		Timeout:   pc.Timeout,
	})
	limiter := ratelimit.New(ratelimit.Config{Interval: pc.RequestInterval, Burst: 1})
	a.Places = places.New(places.Config{
		APIKey:         pc.APIKey,
		BaseURL:        pc.BaseURL,
		Language:       pc.Language,
		Region:         pc.Region,
		MaxPages:       pc.MaxPages,
		PageTokenDelay: pc.PageTokenDelay,
	}, fetcher, limiter, a.Logger.Named("places"))
	return nil
}

func (a *App) initBlobs(ctx context.Context, _ Options) error {
	sc := a.Config.Snapshot
	switch sc.Backend {
	case config.SnapshotNone:
		return nil
	case config.SnapshotLocal:
		store, err := local.New(local.Config{BaseDir: sc.Dir})
		if err != nil {
			return fmt.Errorf("init local snapshot store: %w", err)
		}
		a.Blobs = store
	case config.SnapshotGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, closer{name: "gcs", fn: client.Close})
		store, err := gcsstore.New(client, gcsstore.Config{Bucket: sc.GCSBucket})
		if err != nil {
			return fmt.Errorf("init gcs snapshot store: %w", err)
		}
		a.Blobs = store
	default:
		return fmt.Errorf("unknown snapshot backend %q", sc.Backend)
	}
	a.Logger.Info("snapshot store ready", zap.String("backend", sc.Backend))
	return nil
}

func (a *App) initPublisher(ctx context.Context, _ Options) error {
	pc := a.Config.PubSub
	if !pc.Enabled() {
		return nil
	}
	client, err := pubsub.NewClient(ctx, pc.ProjectID)
	if err != nil {
		return fmt.Errorf("init pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.closers = append(a.closers,
		closer{name: "pubsub", fn: client.Close},
		closer{name: "publisher", fn: func() error { pub.Stop(); return nil }},
	)
	a.Publisher = pub
	a.Logger.Info("publishing discovery events", zap.String("topic", pc.Topic))
	return nil
}

// Pool returns the Postgres pool, or nil for --no-db runs.
func (a *App) Pool() *pgxpool.Pool {
	return a.pool
}

// Driver builds the pipeline driver. dryRunOut receives dry-run records.
func (a *App) Driver(dryRunOut io.Writer) (*pipeline.Driver, error) {
	if a.Places == nil {
		return nil, config.ErrMissingAPIKey
	}
	cfg := pipeline.Config{
		Table:        a.Table,
		Searcher:     a.Places,
		Classifier:   classify.Default(),
		Businesses:   a.Businesses,
		Progress:     a.Progress,
		Publisher:    a.Publisher,
		Topic:        a.Config.PubSub.Topic,
		Clock:        a.Clock,
		IDs:          a.IDs,
		DryRunOutput: dryRunOut,
		Logger:       a.Logger.Named("pipeline"),
	}
	if a.Blobs != nil {
		blobs := a.Blobs
		sc := snapshot.Config{Prefix: a.Config.Snapshot.Prefix, FlushEvery: a.Config.Snapshot.FlushEvery}
		logger := a.Logger.Named("snapshot")
		cfg.Snapshots = func(runID string) discovery.SnapshotWriter {
			return snapshot.NewWriter(blobs, runID, sc, logger)
		}
	}
	d, err := pipeline.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return d, nil
}

// Enricher builds the enrichment runner.
func (a *App) Enricher() (*enrich.Enricher, error) {
	if a.Places == nil {
		return nil, config.ErrMissingAPIKey
	}
	return enrich.New(a.Places, a.Businesses, a.Clock, a.Logger.Named("enrich")), nil
}

// Close shuts down all services in reverse order of creation. It is called
// by a cobra hook after the command finishes.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.Logger.Warn("error closing service", zap.String("service", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	a.Logger.Debug("application services closed")
}
