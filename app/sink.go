package app

import (
	"context"
	"fmt"

	"flexwta/domain/core"
	"flexwta/domain/result"
	"flexwta/ports"
)

// MultiSink fans statistic appends out to several sinks in order. The
// filesystem log stays the source of truth; a database mirror rides along
// when configured. A failure in any sink fails the append, so the runner
// aborts instead of letting the mirrors drift apart.
type MultiSink struct {
	sinks []ports.StatisticSink
}

// NewMultiSink wraps the given sinks. At least one is required.
func NewMultiSink(sinks ...ports.StatisticSink) (*MultiSink, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("%w: multi sink requires at least one sink", core.ErrInvalidArgument)
	}
	return &MultiSink{sinks: sinks}, nil
}

// Append forwards the batch to every sink, stopping at the first failure.
func (m *MultiSink) Append(ctx context.Context, statistics []result.Statistic) error {
	for _, sink := range m.sinks {
		if err := sink.Append(ctx, statistics); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and returns the first failure.
func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
