package migration

import (
	"context"

	"flexwta/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createReplicationStatisticsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create replication_statistics table")
	}

	if err := r.createAggregateResultsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create aggregate_results table")
	}

	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) createReplicationStatisticsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS replication_statistics (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			experiment VARCHAR(10) NOT NULL,
			replicate INTEGER NOT NULL,
			name VARCHAR(255) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			std_err DOUBLE PRECISION,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	return err
}

func (r *MigrationRunner) createAggregateResultsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS aggregate_results (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL,
			experiment VARCHAR(10) NOT NULL,
			name VARCHAR(255) NOT NULL,
			mean DOUBLE PRECISION NOT NULL,
			ci_low DOUBLE PRECISION NOT NULL,
			ci_high DOUBLE PRECISION NOT NULL,
			p_value DOUBLE PRECISION NOT NULL,
			n_usable INTEGER NOT NULL,
			n_intended INTEGER NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE (run_id, name)
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_replication_statistics_run_id ON replication_statistics(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_replication_statistics_run_name ON replication_statistics(run_id, name)`,
		`CREATE INDEX IF NOT EXISTS idx_aggregate_results_experiment ON aggregate_results(experiment, created_at)`,
	}

	for _, index := range indexes {
		if _, err := db.ExecContext(ctx, index); err != nil {
			return err
		}
	}

	return nil
}
