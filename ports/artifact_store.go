package ports

import (
	"context"

	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/domain/result"
)

// ArtifactStore persists frozen model artifacts keyed by experiment and
// replicate index. Save is idempotent: writing the same key twice replaces
// the value atomically. Load of a missing key returns an error satisfying
// core.IsNotFoundError; batch consumers treat that replicate as missing
// data, they never impute it.
type ArtifactStore interface {
	Save(ctx context.Context, artifact *model.Artifact) error
	Load(ctx context.Context, experiment model.Experiment, replicate int) (*model.Artifact, error)
	Exists(ctx context.Context, experiment model.Experiment, replicate int) (bool, error)
	List(ctx context.Context, experiment model.Experiment) ([]int, error)
	Provider() string
}

// ManifestStore persists run manifests next to the artifacts they govern
type ManifestStore interface {
	SaveManifest(ctx context.Context, manifest *result.RunManifest) error
	LoadManifest(ctx context.Context, experiment model.Experiment) (*result.RunManifest, error)
}

// GridStore persists the acceptance-probability grid a run produced, one
// grid per experiment, so export can run long after the batch finished.
type GridStore interface {
	SaveGrid(ctx context.Context, grid *design.ProbabilityGrid) error
	LoadGrid(ctx context.Context, experiment model.Experiment) (*design.ProbabilityGrid, error)
}

// ReportStore persists the final run report
type ReportStore interface {
	SaveReport(ctx context.Context, report *result.RunReport) error
	LoadReport(ctx context.Context, experiment model.Experiment) (*result.RunReport, error)
}
