// Package fsstore persists run artifacts on the local filesystem: one JSON
// file per frozen replicate, one manifest and aggregate file per experiment,
// and an append-only JSONL statistics log. Writes go through a temp file and
// rename, so a crashed run never leaves a half-written artifact behind.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/domain/result"
)

const (
	artifactPattern = "replicate_%04d.json"
	manifestFile    = "manifest.json"
	aggregatesFile  = "aggregates.json"
	gridFile        = "probability_grid.json"
	reportFile      = "report.json"
)

// Store is the filesystem implementation of the artifact, manifest, and
// aggregate ports. Layout: <baseDir>/<experiment>/replicate_0000.json,
// manifest.json, aggregates.json.
type Store struct {
	baseDir string
}

// NewStore creates the base directory if needed.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: store base directory cannot be empty", core.ErrInvalidArgument)
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// Provider identifies the backing storage.
func (s *Store) Provider() string { return "filesystem" }

// BaseDir returns the store root.
func (s *Store) BaseDir() string { return s.baseDir }

func (s *Store) experimentDir(experiment model.Experiment) string {
	return filepath.Join(s.baseDir, string(experiment))
}

func (s *Store) artifactPath(experiment model.Experiment, replicate int) string {
	return filepath.Join(s.experimentDir(experiment), fmt.Sprintf(artifactPattern, replicate))
}

// Save writes one artifact atomically, replacing any previous value at the
// same key.
func (s *Store) Save(ctx context.Context, artifact *model.Artifact) error {
	if artifact == nil {
		return fmt.Errorf("%w: artifact cannot be nil", core.ErrInvalidArgument)
	}
	if err := artifact.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(s.artifactPath(artifact.Experiment, artifact.Replicate), artifact)
}

// Load reads one artifact. A missing key satisfies core.IsNotFoundError.
func (s *Store) Load(ctx context.Context, experiment model.Experiment, replicate int) (*model.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.artifactPath(experiment, replicate))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/replicate_%04d", core.ErrArtifactNotFound, experiment, replicate)
		}
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var artifact model.Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decoding artifact %s/replicate_%04d: %w", experiment, replicate, err)
	}
	if artifact.Experiment != experiment || artifact.Replicate != replicate {
		return nil, core.NewSpecMismatchError("stored artifact key",
			fmt.Sprintf("%s/%d", experiment, replicate),
			fmt.Sprintf("%s/%d", artifact.Experiment, artifact.Replicate))
	}
	if err := artifact.Validate(); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Exists reports whether a replicate has been frozen and persisted.
func (s *Store) Exists(ctx context.Context, experiment model.Experiment, replicate int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.artifactPath(experiment, replicate))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking artifact: %w", err)
}

// List returns the persisted replicate indexes of an experiment in
// ascending order. An experiment with no artifacts lists empty, not missing.
func (s *Store) List(ctx context.Context, experiment model.Experiment) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.experimentDir(experiment))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	var replicates []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, "replicate_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		r, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "replicate_"), ".json"))
		if err != nil {
			continue
		}
		replicates = append(replicates, r)
	}
	sort.Ints(replicates)
	return replicates, nil
}

// SaveManifest writes the experiment's run manifest atomically.
func (s *Store) SaveManifest(ctx context.Context, manifest *result.RunManifest) error {
	if manifest == nil {
		return fmt.Errorf("%w: manifest cannot be nil", core.ErrInvalidArgument)
	}
	if err := manifest.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.experimentDir(manifest.Experiment), manifestFile), manifest)
}

// LoadManifest reads the experiment's run manifest.
func (s *Store) LoadManifest(ctx context.Context, experiment model.Experiment) (*result.RunManifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.experimentDir(experiment), manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: manifest for %s", core.ErrRunNotFound, experiment)
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest result.RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", experiment, err)
	}
	return &manifest, nil
}

// SaveGrid writes the experiment's acceptance-probability grid atomically.
func (s *Store) SaveGrid(ctx context.Context, grid *design.ProbabilityGrid) error {
	if grid == nil {
		return fmt.Errorf("%w: probability grid cannot be nil", core.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.experimentDir(grid.Experiment), gridFile), grid)
}

// LoadGrid reads the experiment's acceptance-probability grid.
func (s *Store) LoadGrid(ctx context.Context, experiment model.Experiment) (*design.ProbabilityGrid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.experimentDir(experiment), gridFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("probability grid", string(experiment))
		}
		return nil, fmt.Errorf("reading probability grid: %w", err)
	}

	var grid design.ProbabilityGrid
	if err := json.Unmarshal(data, &grid); err != nil {
		return nil, fmt.Errorf("decoding probability grid for %s: %w", experiment, err)
	}
	return &grid, nil
}

// SaveReport writes the experiment's run report atomically.
func (s *Store) SaveReport(ctx context.Context, report *result.RunReport) error {
	if report == nil {
		return fmt.Errorf("%w: report cannot be nil", core.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.experimentDir(report.Manifest.Experiment), reportFile), report)
}

// LoadReport reads the experiment's run report.
func (s *Store) LoadReport(ctx context.Context, experiment model.Experiment) (*result.RunReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.experimentDir(experiment), reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: report for %s", core.ErrRunNotFound, experiment)
		}
		return nil, fmt.Errorf("reading report: %w", err)
	}

	var report result.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report for %s: %w", experiment, err)
	}
	return &report, nil
}

// SaveAggregates writes an experiment's final summaries atomically. All
// aggregates in one call must belong to the same experiment.
func (s *Store) SaveAggregates(ctx context.Context, aggregates []result.Aggregate) error {
	if len(aggregates) == 0 {
		return fmt.Errorf("%w: aggregate list cannot be empty", core.ErrInvalidArgument)
	}
	experiment := aggregates[0].Experiment
	for _, a := range aggregates {
		if err := a.Validate(); err != nil {
			return err
		}
		if a.Experiment != experiment {
			return core.NewSpecMismatchError("aggregate experiment", experiment, a.Experiment)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return writeJSONAtomic(filepath.Join(s.experimentDir(experiment), aggregatesFile), aggregates)
}

// ListByExperiment reads back an experiment's saved aggregates.
func (s *Store) ListByExperiment(ctx context.Context, experiment model.Experiment) ([]result.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.experimentDir(experiment), aggregatesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: aggregates for %s", core.ErrNotFound, experiment)
		}
		return nil, fmt.Errorf("reading aggregates: %w", err)
	}

	var aggregates []result.Aggregate
	if err := json.Unmarshal(data, &aggregates); err != nil {
		return nil, fmt.Errorf("decoding aggregates for %s: %w", experiment, err)
	}
	return aggregates, nil
}

// writeJSONAtomic marshals v and moves it into place with a rename, creating
// the parent directory on the way.
func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
