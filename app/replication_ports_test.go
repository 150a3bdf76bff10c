package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"flexwta/adapters/fsstore"
	"flexwta/domain/core"
	"flexwta/domain/model"
	"flexwta/domain/result"
	"flexwta/ports"
)

// Mock implementations for testing
type MockStatisticSink struct {
	mock.Mock
}

func (m *MockStatisticSink) Append(ctx context.Context, stats []result.Statistic) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

func (m *MockStatisticSink) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockStatisticRepository struct {
	mock.Mock
}

func (m *MockStatisticRepository) ListByRun(ctx context.Context, runID core.RunID) ([]result.Statistic, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).([]result.Statistic), args.Error(1)
}

type MockAggregateRepository struct {
	mock.Mock
}

func (m *MockAggregateRepository) SaveAggregates(ctx context.Context, aggregates []result.Aggregate) error {
	args := m.Called(ctx, aggregates)
	return args.Error(0)
}

func (m *MockAggregateRepository) ListByExperiment(ctx context.Context, experiment model.Experiment) ([]result.Aggregate, error) {
	args := m.Called(ctx, experiment)
	return args.Get(0).([]result.Aggregate), args.Error(1)
}

func TestReplicationServiceSinkFailureAborts(t *testing.T) {
	ctx := context.Background()
	inputs := syntheticInputs(t)

	store, err := fsstore.NewStore(t.TempDir())
	assert.NoError(t, err)

	errSink := errors.New("sink write refused")
	mockSink := &MockStatisticSink{}
	mockSink.On("Append", mock.Anything, mock.Anything).Return(errSink)
	mockStats := &MockStatisticRepository{}

	svc := NewReplicationService(store, mockSink, mockStats, nil, nil)
	_, err = svc.Run(ctx, ReplicationRequest{
		Inputs:     inputs,
		Seed:       7,
		Replicates: 3,
		InnerDraws: 16,
		BurnIn:     5,
		Workers:    2,
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, errSink)
	mockSink.AssertExpectations(t)
	mockStats.AssertNotCalled(t, "ListByRun")

	// The validated artifact lands before the first sink append, so the
	// aborted run still leaves replicate 0 behind.
	validated, err := store.Load(ctx, model.ExperimentEV, model.ValidatedReplicate)
	assert.NoError(t, err)
	assert.True(t, validated.IsValidated())

	_, err = store.LoadReport(ctx, model.ExperimentEV)
	assert.True(t, core.IsNotFoundError(err))
}

func TestReplicationServiceAggregateSaveFailure(t *testing.T) {
	ctx := context.Background()
	inputs := syntheticInputs(t)

	store, err := fsstore.NewStore(t.TempDir())
	assert.NoError(t, err)
	log, err := fsstore.OpenStatisticLog(store.StatisticsPath(model.ExperimentEV), true)
	assert.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	errSave := errors.New("aggregate table unavailable")
	mockAgg := &MockAggregateRepository{}
	mockAgg.On("SaveAggregates", mock.Anything, mock.Anything).Return(errSave)

	svc := NewReplicationService(store, log, log, []ports.AggregateRepository{mockAgg}, nil)
	_, err = svc.Run(ctx, ReplicationRequest{
		Inputs:     inputs,
		Seed:       7,
		Replicates: 5,
		InnerDraws: 16,
		BurnIn:     5,
		Workers:    2,
	})

	assert.Error(t, err)
	assert.ErrorIs(t, err, errSave)
	mockAgg.AssertExpectations(t)

	// Aggregation failed, so no report was written. The per-replicate
	// artifacts are all on disk and a rerun can aggregate them again.
	_, err = store.LoadReport(ctx, model.ExperimentEV)
	assert.True(t, core.IsNotFoundError(err))

	indices, err := store.List(ctx, model.ExperimentEV)
	assert.NoError(t, err)
	assert.Len(t, indices, 6)
}
