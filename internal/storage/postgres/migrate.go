package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

// MigrationResult reports the schema version before and after Migrate.
// Version 0 means no migration had been applied.
type MigrationResult struct {
	From uint
	To   uint
}

// Changed reports whether Migrate applied anything.
func (r MigrationResult) Changed() bool {
	return r.From != r.To
}

// Migrations returns the embedded schema versions in order.
func Migrations() ([]uint, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	defer func() { _ = src.Close() }()

	var versions []uint
	v, err := src.First()
	for err == nil {
		versions = append(versions, v)
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list embedded migrations: %w", err)
	}
	return versions, nil
}

// Migrate applies every pending embedded migration with golang-migrate. It
// opens its own database/sql handle from the pool's connection config so that
// closing the migrator leaves the pool untouched. Canceling ctx stops after
// the migration in flight.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) (MigrationResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pool == nil {
		return MigrationResult{}, errors.New("migrate: nil pool")
	}
	m, err := newMigrator(pool, logger)
	if err != nil {
		return MigrationResult{}, err
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if err := errors.Join(srcErr, dbErr); err != nil {
			logger.Warn("close migrator failed", zap.Error(err))
		}
	}()

	stop := context.AfterFunc(ctx, func() {
		select {
		case m.GracefulStop <- true:
		default:
		}
	})
	defer stop()

	var res MigrationResult
	if res.From, err = currentVersion(m); err != nil {
		return res, err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return res, fmt.Errorf("apply migrations: %w", err)
	}
	if res.To, err = currentVersion(m); err != nil {
		return res, err
	}
	if res.Changed() {
		logger.Info("schema migrated", zap.Uint("from", res.From), zap.Uint("to", res.To))
	}
	return res, ctx.Err()
}

func newMigrator(pool *pgxpool.Pool, logger *zap.Logger) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = src.Close()
		_ = db.Close()
		return nil, fmt.Errorf("open migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, fmt.Errorf("init migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger.Sugar()}
	return m, nil
}

func currentVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)
	case dirty:
		return v, fmt.Errorf("schema version %d is dirty; fix it by hand and force the version", v)
	}
	return v, nil
}

// migrateLogger adapts zap to migrate.Logger.
type migrateLogger struct {
	logger *zap.SugaredLogger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debugf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Desugar().Core().Enabled(zap.DebugLevel)
}
