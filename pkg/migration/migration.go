// Package migration applies embedded SQL migrations at startup so the schema
// the repositories expect is always present.
package migration

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Runner applies migrations from an embedded filesystem against the pool's
// database.
type Runner struct {
	pool *pgxpool.Pool
	fsys fs.FS
	path string
}

func NewRunner(pool *pgxpool.Pool, fsys fs.FS, path string) *Runner {
	return &Runner{pool: pool, fsys: fsys, path: path}
}

// Apply runs all pending migrations. Already being up to date is not an error.
func (r *Runner) Apply(ctx context.Context) error {
	m, err := r.build(ctx)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("database migrations applied")
	return nil
}

func (r *Runner) build(ctx context.Context) (*migrate.Migrate, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	conn.Release()

	db := stdlib.OpenDBFromPool(r.pool)
	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(r.fsys, r.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.LockTimeout = 30 * time.Second
	return m, nil
}
