package ports

import (
	"context"

	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/domain/result"
)

// StatisticSink receives per-replicate statistics as they are produced.
// Implementations must tolerate appends from a single writer goroutine in
// arbitrary replicate order.
type StatisticSink interface {
	Append(ctx context.Context, stats []result.Statistic) error
	Close() error
}

// StatisticRepository reads back everything a run produced, for aggregation
type StatisticRepository interface {
	ListByRun(ctx context.Context, runID core.RunID) ([]result.Statistic, error)
}

// AggregateRepository persists final cross-replicate summaries
type AggregateRepository interface {
	SaveAggregates(ctx context.Context, aggregates []result.Aggregate) error
	ListByExperiment(ctx context.Context, experiment model.Experiment) ([]result.Aggregate, error)
}
