package app

import (
	"context"
	"fmt"

	"flexwta/domain/choice"
	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
	"flexwta/internal/config"
	"flexwta/internal/logging"
	"flexwta/internal/mlogit"
	"flexwta/ports"
)

// StudyInputs holds everything one experiment's replication run consumes,
// loaded and cross-validated before any replicate starts. A failure here is
// fatal for the whole run; per-replicate failures are handled downstream.
type StudyInputs struct {
	Spec          model.UtilitySpec
	Estimate      model.PointEstimate
	Design        *design.Table
	Panel         *choice.Panel
	Covariates    *choice.CovariateTable
	APERequests   []mlogit.APERequest
	WTAAttributes []string
}

// StudyLoader resolves a study definition into domain inputs through the
// configured data sources.
type StudyLoader struct {
	estimates  ports.EstimateSource
	panels     ports.PanelSource
	covariates ports.CovariateSource
	designs    ports.DesignSource
	logger     *logging.Logger
}

// NewStudyLoader creates a study loader. The covariate and design sources
// may be nil when the study defines no covariates and expands its design
// from attribute levels.
func NewStudyLoader(
	estimates ports.EstimateSource,
	panels ports.PanelSource,
	covariates ports.CovariateSource,
	designs ports.DesignSource,
	logger *logging.Logger,
) *StudyLoader {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &StudyLoader{
		estimates:  estimates,
		panels:     panels,
		covariates: covariates,
		designs:    designs,
		logger:     logger,
	}
}

// BuildSpec converts a study definition into a validated utility spec.
func BuildSpec(def *config.ExperimentStudy) (model.UtilitySpec, error) {
	if def == nil {
		return model.UtilitySpec{}, fmt.Errorf("%w: study definition cannot be nil", core.ErrInvalidArgument)
	}
	experiment, err := model.ParseExperiment(def.Experiment)
	if err != nil {
		return model.UtilitySpec{}, err
	}

	attributes := make([]model.Attribute, len(def.Attributes))
	for i, a := range def.Attributes {
		attributes[i] = model.Attribute{Name: a.Name, Random: a.Random}
	}

	spec := model.UtilitySpec{
		Experiment:    experiment,
		Attributes:    attributes,
		CostAttribute: def.CostAttribute,
	}
	if err := spec.Validate(); err != nil {
		return model.UtilitySpec{}, err
	}
	return spec, nil
}

// Load resolves one experiment's inputs and validates every piece against
// the utility spec. The estimate must match the spec layout, the design and
// panel must cover exactly the spec's attributes, and covariate values must
// respect their declared kinds.
func (l *StudyLoader) Load(ctx context.Context, def *config.ExperimentStudy) (*StudyInputs, error) {
	spec, err := BuildSpec(def)
	if err != nil {
		return nil, err
	}

	estimate, err := l.estimates.LoadEstimate(ctx, spec.Experiment)
	if err != nil {
		return nil, err
	}
	if err := estimate.MatchesSpec(spec); err != nil {
		return nil, err
	}

	table, err := l.loadDesign(ctx, def, spec)
	if err != nil {
		return nil, err
	}
	if err := table.ValidateAgainst(spec); err != nil {
		return nil, err
	}

	panel, err := l.panels.LoadPanel(ctx, spec.Experiment)
	if err != nil {
		return nil, err
	}
	if err := panel.ValidateAgainst(spec); err != nil {
		return nil, err
	}

	covariates, err := l.loadCovariates(ctx, def)
	if err != nil {
		return nil, err
	}

	apeRequests := make([]mlogit.APERequest, len(def.APERequests))
	for i, req := range def.APERequests {
		apeRequests[i] = mlogit.APERequest{Attribute: req.Attribute, From: req.From, To: req.To}
	}

	l.logger.Info("[StudyLoader] Loaded %s study: %d scenarios, %d respondents, %d ape targets, %d wta attributes",
		spec.Experiment, table.NumScenarios(), panel.NumRespondents(), len(apeRequests), len(def.WTAAttributes))

	return &StudyInputs{
		Spec:          spec,
		Estimate:      *estimate,
		Design:        table,
		Panel:         panel,
		Covariates:    covariates,
		APERequests:   apeRequests,
		WTAAttributes: append([]string(nil), def.WTAAttributes...),
	}, nil
}

func (l *StudyLoader) loadDesign(ctx context.Context, def *config.ExperimentStudy, spec model.UtilitySpec) (*design.Table, error) {
	if def.DesignPath != "" {
		if l.designs == nil {
			return nil, fmt.Errorf("%w: study names a design file but no design source is configured", core.ErrInvalidArgument)
		}
		return l.designs.LoadDesign(ctx, spec.Experiment)
	}
	return design.Expand(spec.Experiment, spec.AttributeNames(), def.Levels)
}

func (l *StudyLoader) loadCovariates(ctx context.Context, def *config.ExperimentStudy) (*choice.CovariateTable, error) {
	if len(def.Covariates) == 0 {
		return nil, nil
	}
	if l.covariates == nil {
		return nil, fmt.Errorf("%w: study names covariates but no covariate source is configured", core.ErrInvalidArgument)
	}
	schema := make([]choice.CovariateSpec, len(def.Covariates))
	for i, c := range def.Covariates {
		schema[i] = choice.CovariateSpec{Name: c.Name, Kind: choice.CovariateKind(c.Kind)}
	}
	return l.covariates.LoadCovariates(ctx, schema)
}
