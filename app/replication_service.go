package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/montanaflynn/stats"

	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/domain/result"
	"flexwta/internal/krinsky"
	"flexwta/internal/logging"
	"flexwta/internal/mlogit"
	"flexwta/ports"
)

// CodeVersion is stamped into run manifests so fingerprints change when the
// pipeline itself does.
const CodeVersion = "0.1.0"

// RunStore bundles the persistence surfaces one replication run writes to.
// The filesystem store implements all of them.
type RunStore interface {
	ports.ArtifactStore
	ports.ManifestStore
	ports.GridStore
	ports.ReportStore
}

// ReplicationService orchestrates one experiment's Krinsky-Robb run: draw
// coefficient vectors, freeze and persist each as an artifact, simulate
// probabilities and conditional statistics per replicate, and aggregate the
// surviving statistics into confidence intervals.
type ReplicationService struct {
	store      RunStore
	sink       ports.StatisticSink
	statistics ports.StatisticRepository
	aggregates []ports.AggregateRepository
	logger     *logging.Logger
}

// ReplicationRequest defines one run over already-loaded study inputs.
// OnManifest fires once the run identity is settled, before any replicate
// starts; OnProgress fires per finished or failed replicate.
type ReplicationRequest struct {
	RunID      core.RunID // optional, generated when empty
	Inputs     *StudyInputs
	Seed       int64
	Replicates int
	InnerDraws int
	BurnIn     int
	Workers    int
	Timeout    time.Duration
	OnManifest func(*result.RunManifest)
	OnProgress func(krinsky.Progress)
}

// ReplicationResult is the complete output of one run.
type ReplicationResult struct {
	Report    *result.RunReport
	Grid      *design.ProbabilityGrid
	RuntimeMs int64
}

// runScope holds the per-run engines shared by the validated artifact and
// every replicate task.
type runScope struct {
	manifest  *result.RunManifest
	inputs    *StudyInputs
	predictor *mlogit.Predictor
	deriver   *mlogit.Deriver
}

// NewReplicationService creates a replication service. The sink receives
// statistics as replicates finish; the repository reads them back for
// aggregation; every aggregate repository gets the final summaries.
func NewReplicationService(
	store RunStore,
	sink ports.StatisticSink,
	statistics ports.StatisticRepository,
	aggregates []ports.AggregateRepository,
	logger *logging.Logger,
) *ReplicationService {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &ReplicationService{
		store:      store,
		sink:       sink,
		statistics: statistics,
		aggregates: aggregates,
		logger:     logger,
	}
}

// Run executes the full replication pipeline for one experiment. Input
// failures are fatal; individual replicate failures are recorded in the
// report and excluded from aggregation.
func (s *ReplicationService) Run(ctx context.Context, req ReplicationRequest) (*ReplicationResult, error) {
	startTime := time.Now()

	if req.Inputs == nil {
		return nil, fmt.Errorf("%w: replication requires study inputs", core.ErrInvalidArgument)
	}
	if req.Replicates <= 0 {
		return nil, fmt.Errorf("%w: replicate count must be positive, got %d", core.ErrInvalidArgument, req.Replicates)
	}
	inputs := req.Inputs

	predictor, err := mlogit.NewPredictor(req.InnerDraws, req.BurnIn)
	if err != nil {
		return nil, err
	}
	deriver, err := mlogit.NewDeriver(req.InnerDraws, req.BurnIn)
	if err != nil {
		return nil, err
	}
	runner, err := krinsky.NewRunner(krinsky.RunnerConfig{Workers: req.Workers, Timeout: req.Timeout}, s.logger)
	if err != nil {
		return nil, err
	}
	drawer, err := krinsky.NewDrawer(inputs.Estimate, uint64(req.Seed))
	if err != nil {
		return nil, err
	}

	manifest, err := s.resolveManifest(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.OnManifest != nil {
		req.OnManifest(manifest)
	}
	scope := &runScope{manifest: manifest, inputs: inputs, predictor: predictor, deriver: deriver}

	s.logger.Info("[ReplicationService] Run %s: %s, %d replicates, seed %d, %d inner draws",
		manifest.RunID, manifest.Experiment, manifest.Replicates, manifest.Seed, manifest.InnerDraws)

	// Replicate 0 is the validated point estimate. Its statistics describe
	// the point prediction; aggregation never mixes them into the bootstrap
	// distribution.
	validated, err := model.Freeze(inputs.Spec, model.ValidatedReplicate, inputs.Estimate.Coefs)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, validated); err != nil {
		return nil, err
	}
	grid := design.NewProbabilityGrid(inputs.Design)
	validatedStats, validatedProbs, err := s.computeStatistics(ctx, scope, validated)
	if err != nil {
		return nil, err
	}
	if err := grid.Append(design.ReplicateLabel(model.ValidatedReplicate), validatedProbs); err != nil {
		return nil, err
	}
	if err := s.sink.Append(ctx, validatedStats); err != nil {
		return nil, err
	}

	draws, err := drawer.DrawAll(req.Replicates)
	if err != nil {
		return nil, err
	}

	var (
		gridMu   sync.Mutex
		gridCols = make(map[int][]float64, req.Replicates)
	)
	task := func(taskCtx context.Context, replicate int, theta []float64) ([]result.Statistic, error) {
		art, err := model.Freeze(inputs.Spec, replicate, theta)
		if err != nil {
			return nil, krinsky.NewStageError("freeze", err)
		}
		if err := s.store.Save(taskCtx, art); err != nil {
			return nil, krinsky.NewStageError("persist", err)
		}
		statistics, probs, err := s.computeStatistics(taskCtx, scope, art)
		if err != nil {
			return nil, err
		}
		gridMu.Lock()
		gridCols[replicate] = probs
		gridMu.Unlock()
		return statistics, nil
	}

	outcome, err := runner.Run(ctx, draws, task, s.sink, req.OnProgress)
	if err != nil {
		return nil, err
	}

	// Columns land in replicate order regardless of completion order.
	for r := 1; r <= req.Replicates; r++ {
		if col, ok := gridCols[r]; ok {
			if err := grid.Append(design.ReplicateLabel(r), col); err != nil {
				return nil, err
			}
		}
	}
	if err := s.store.SaveGrid(ctx, grid); err != nil {
		return nil, err
	}

	statistics, err := s.statistics.ListByRun(ctx, manifest.RunID)
	if err != nil {
		return nil, err
	}
	aggregates, err := krinsky.AggregateRun(manifest, statistics)
	if err != nil {
		return nil, err
	}
	for _, repo := range s.aggregates {
		if err := repo.SaveAggregates(ctx, aggregates); err != nil {
			return nil, err
		}
	}

	report := &result.RunReport{
		Manifest:   *manifest,
		Aggregates: aggregates,
		Failures:   outcome.Failures,
		Completed:  outcome.Completed,
	}
	if err := s.store.SaveReport(ctx, report); err != nil {
		return nil, err
	}

	runtimeMs := time.Since(startTime).Milliseconds()
	s.logger.Info("[ReplicationService] Run %s finished in %dms: %d/%d replicates usable, %d failures, %d aggregates",
		manifest.RunID, runtimeMs, outcome.Completed, req.Replicates, len(outcome.Failures), len(aggregates))

	return &ReplicationResult{Report: report, Grid: grid, RuntimeMs: runtimeMs}, nil
}

// Freeze settles the run identity and persists the validated point estimate
// as replicate 0, without running any replicates. A later Run under the same
// configuration picks the manifest up unchanged.
func (s *ReplicationService) Freeze(ctx context.Context, req ReplicationRequest) (*model.Artifact, *result.RunManifest, error) {
	if req.Inputs == nil {
		return nil, nil, fmt.Errorf("%w: freeze requires study inputs", core.ErrInvalidArgument)
	}
	if req.Replicates <= 0 {
		return nil, nil, fmt.Errorf("%w: replicate count must be positive, got %d", core.ErrInvalidArgument, req.Replicates)
	}

	manifest, err := s.resolveManifest(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	validated, err := model.Freeze(req.Inputs.Spec, model.ValidatedReplicate, req.Inputs.Estimate.Coefs)
	if err != nil {
		return nil, nil, err
	}
	if err := s.store.Save(ctx, validated); err != nil {
		return nil, nil, err
	}

	s.logger.Info("[ReplicationService] Froze validated artifact for %s under run %s",
		manifest.Experiment, manifest.RunID)
	return validated, manifest, nil
}

// resolveManifest builds the run manifest and reconciles it against any
// previous manifest for the experiment. A matching fingerprint adopts the
// prior run's identity so recomputed statistics stay under one run id; a
// mismatch means the inputs drifted and nothing on disk can be trusted.
func (s *ReplicationService) resolveManifest(ctx context.Context, req ReplicationRequest) (*result.RunManifest, error) {
	runID := req.RunID
	if core.ID(runID).IsEmpty() {
		runID = core.NewRunID()
	}
	inputs := req.Inputs
	manifest := result.NewRunManifest(
		runID,
		inputs.Spec.Experiment,
		req.Seed,
		req.Replicates,
		req.InnerDraws,
		req.BurnIn,
		inputs.Spec.Hash(),
		inputs.Design.Hash(),
		CodeVersion,
	)

	prior, err := s.store.LoadManifest(ctx, manifest.Experiment)
	switch {
	case err == nil:
		if !prior.SameConfiguration(manifest) {
			return nil, fmt.Errorf("%w: experiment %s was frozen under fingerprint %s, rerun requested %s; clear the store or restore the original configuration",
				core.ErrHashMismatch, manifest.Experiment, prior.Fingerprint, manifest.Fingerprint)
		}
		s.logger.Info("[ReplicationService] Resuming run %s under existing manifest", prior.RunID)
		return prior, nil
	case core.IsNotFoundError(err):
		if err := s.store.SaveManifest(ctx, manifest); err != nil {
			return nil, err
		}
		return manifest, nil
	default:
		return nil, err
	}
}

// computeStatistics runs the predict and derive stages for one artifact and
// returns its statistic rows plus its probability column. Errors carry the
// stage that produced them.
func (s *ReplicationService) computeStatistics(ctx context.Context, scope *runScope, art *model.Artifact) ([]result.Statistic, []float64, error) {
	manifest, inputs := scope.manifest, scope.inputs

	probs, err := scope.predictor.Predict(art, inputs.Design)
	if err != nil {
		return nil, nil, krinsky.NewStageError("predict", err)
	}

	row := func(name string, value float64) result.Statistic {
		return result.Statistic{
			RunID:      manifest.RunID,
			Experiment: manifest.Experiment,
			Replicate:  art.Replicate,
			Name:       name,
			Value:      value,
		}
	}

	statistics := make([]result.Statistic, 0, len(inputs.APERequests)+len(inputs.WTAAttributes))
	for _, req := range inputs.APERequests {
		ape, err := scope.predictor.AveragePartialEffect(art, inputs.Design, req)
		if err != nil {
			return nil, nil, krinsky.NewStageError("predict", err)
		}
		statistics = append(statistics, row(result.APEStatName(req.Attribute), ape))
	}

	if len(inputs.WTAAttributes) == 0 {
		return statistics, probs, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, krinsky.NewStageError("derive", err)
	}

	conditionals, err := scope.deriver.Derive(art, inputs.Panel)
	if err != nil {
		return nil, nil, krinsky.NewStageError("derive", err)
	}
	observations, err := mlogit.DeriveWTA(inputs.Spec, conditionals, inputs.WTAAttributes)
	if err != nil {
		return nil, nil, krinsky.NewStageError("derive", err)
	}

	for _, attr := range inputs.WTAAttributes {
		values := make([]float64, 0, len(conditionals))
		for _, obs := range observations {
			if obs.Attribute == attr && !obs.Degenerate {
				values = append(values, obs.Value)
			}
		}
		if len(values) == 0 {
			return nil, nil, krinsky.NewStageError("derive",
				fmt.Errorf("%w: every %s ratio degenerate in replicate %d", core.ErrDegenerateRatio, attr, art.Replicate))
		}
		mean, err := stats.Mean(values)
		if err != nil {
			return nil, nil, krinsky.NewStageError("derive", core.NewNumericalError("wta mean", err))
		}
		statistics = append(statistics, row(result.WTAMeanStatName(attr), mean))

		if inputs.Covariates == nil {
			continue
		}
		coefficients, err := mlogit.RegressWTA(observations, attr, inputs.Covariates)
		if err != nil {
			return nil, nil, krinsky.NewStageError("derive", err)
		}
		for _, coef := range coefficients {
			stat := row(result.WTARegStatName(attr, coef.Covariate), coef.Value)
			se := coef.StdErr
			stat.StdErr = &se
			statistics = append(statistics, stat)
		}
	}

	return statistics, probs, nil
}
