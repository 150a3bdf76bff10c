package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/domain/result"
	"flexwta/ports"
)

// AggregateRepository persists final run summaries in aggregate_results
type AggregateRepository struct {
	db *sqlx.DB
}

var _ ports.AggregateRepository = (*AggregateRepository)(nil)

// NewAggregateRepository creates a repository over the aggregate_results table
func NewAggregateRepository(db *sqlx.DB) *AggregateRepository {
	return &AggregateRepository{db: db}
}

// SaveAggregates upserts one run's summaries. Re-running aggregation for the
// same run replaces its rows instead of duplicating them.
func (r *AggregateRepository) SaveAggregates(ctx context.Context, aggregates []result.Aggregate) error {
	if len(aggregates) == 0 {
		return nil
	}
	for i := range aggregates {
		if err := aggregates[i].Validate(); err != nil {
			return fmt.Errorf("invalid aggregate in batch: %w", err)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO aggregate_results (
		run_id, experiment, name, mean, ci_low, ci_high, p_value, n_usable, n_intended
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (run_id, name) DO UPDATE SET
		mean = EXCLUDED.mean,
		ci_low = EXCLUDED.ci_low,
		ci_high = EXCLUDED.ci_high,
		p_value = EXCLUDED.p_value,
		n_usable = EXCLUDED.n_usable,
		n_intended = EXCLUDED.n_intended`

	for i := range aggregates {
		a := &aggregates[i]
		if _, err := tx.ExecContext(ctx, query,
			a.RunID.String(), string(a.Experiment), a.Name,
			a.Mean, a.CILow, a.CIHigh, a.PValue, a.NUsable, a.NIntended,
		); err != nil {
			return fmt.Errorf("failed to upsert aggregate %s: %w", a.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit aggregates: %w", err)
	}
	return nil
}

// ListByExperiment retrieves the aggregates of an experiment's most recent run
func (r *AggregateRepository) ListByExperiment(ctx context.Context, experiment model.Experiment) ([]result.Aggregate, error) {
	query := `SELECT run_id, experiment, name, mean, ci_low, ci_high, p_value, n_usable, n_intended
	FROM aggregate_results
	WHERE run_id = (
		SELECT run_id FROM aggregate_results
		WHERE experiment = $1
		ORDER BY created_at DESC
		LIMIT 1
	)
	ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query, string(experiment))
	if err != nil {
		return nil, fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	var aggregates []result.Aggregate
	for rows.Next() {
		var (
			a      result.Aggregate
			runRaw string
			expRaw string
		)
		if err := rows.Scan(&runRaw, &expRaw, &a.Name,
			&a.Mean, &a.CILow, &a.CIHigh, &a.PValue, &a.NUsable, &a.NIntended); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate: %w", err)
		}
		a.RunID = core.RunID(runRaw)
		a.Experiment = model.Experiment(expRaw)
		aggregates = append(aggregates, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate aggregates: %w", err)
	}
	if len(aggregates) == 0 {
		return nil, core.NewNotFoundError("aggregates", string(experiment))
	}
	return aggregates, nil
}
