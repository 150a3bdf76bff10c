package ports

import (
	"context"

	"flexwta/domain/choice"
	"flexwta/domain/design"
	"flexwta/domain/model"
)

// EstimateSource loads the externally estimated coefficients and covariance
type EstimateSource interface {
	LoadEstimate(ctx context.Context, experiment model.Experiment) (*model.PointEstimate, error)
}

// PanelSource loads the observed choice panel of an experiment
type PanelSource interface {
	LoadPanel(ctx context.Context, experiment model.Experiment) (*choice.Panel, error)
}

// CovariateSource loads respondent covariates validated against a spec
type CovariateSource interface {
	LoadCovariates(ctx context.Context, spec []choice.CovariateSpec) (*choice.CovariateTable, error)
}

// DesignSource loads an explicit TIOLI scenario design. Studies that define
// attribute levels instead expand the design in process and skip this port.
type DesignSource interface {
	LoadDesign(ctx context.Context, experiment model.Experiment) (*design.Table, error)
}
