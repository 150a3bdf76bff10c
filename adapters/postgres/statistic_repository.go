// Package postgres mirrors the replication outputs into Postgres. The
// filesystem log stays the source of truth for aggregation; these
// repositories exist so runs can be queried across machines.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/domain/result"
	"flexwta/ports"
)

// StatisticRepository writes and reads the replication_statistics table.
// It satisfies both the sink and the read-back ports.
type StatisticRepository struct {
	db *sqlx.DB
}

var (
	_ ports.StatisticSink       = (*StatisticRepository)(nil)
	_ ports.StatisticRepository = (*StatisticRepository)(nil)
)

// NewStatisticRepository creates a repository over the replication_statistics table
func NewStatisticRepository(db *sqlx.DB) *StatisticRepository {
	return &StatisticRepository{db: db}
}

// Append inserts one batch of statistics inside a single transaction, so a
// failed replicate batch never lands half-written.
func (r *StatisticRepository) Append(ctx context.Context, stats []result.Statistic) error {
	if len(stats) == 0 {
		return nil
	}
	for i := range stats {
		if err := stats[i].Validate(); err != nil {
			return fmt.Errorf("invalid statistic in batch: %w", err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO replication_statistics (
		run_id, experiment, replicate, name, value, std_err
	) VALUES ($1, $2, $3, $4, $5, $6)`

	for i := range stats {
		s := &stats[i]
		var stdErr sql.NullFloat64
		if s.StdErr != nil {
			stdErr = sql.NullFloat64{Float64: *s.StdErr, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, query,
			s.RunID.String(), string(s.Experiment), s.Replicate, s.Name, s.Value, stdErr,
		); err != nil {
			return fmt.Errorf("failed to insert statistic %s: %w", s.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit statistics batch: %w", err)
	}
	return nil
}

// Close is a no-op: the connection pool belongs to the caller
func (r *StatisticRepository) Close() error {
	return nil
}

// ListByRun retrieves every statistic one run produced
func (r *StatisticRepository) ListByRun(ctx context.Context, runID core.RunID) ([]result.Statistic, error) {
	query := `SELECT run_id, experiment, replicate, name, value, std_err
	FROM replication_statistics
	WHERE run_id = $1
	ORDER BY replicate, name`

	rows, err := r.db.QueryContext(ctx, query, runID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query statistics: %w", err)
	}
	defer rows.Close()

	var stats []result.Statistic
	for rows.Next() {
		var (
			s      result.Statistic
			runRaw string
			expRaw string
			stdErr sql.NullFloat64
		)
		if err := rows.Scan(&runRaw, &expRaw, &s.Replicate, &s.Name, &s.Value, &stdErr); err != nil {
			return nil, fmt.Errorf("failed to scan statistic: %w", err)
		}
		s.RunID = core.RunID(runRaw)
		s.Experiment = model.Experiment(expRaw)
		if stdErr.Valid {
			v := stdErr.Float64
			s.StdErr = &v
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statistics: %w", err)
	}
	return stats, nil
}
