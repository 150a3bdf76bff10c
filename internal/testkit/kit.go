// Package testkit generates known-truth synthetic studies: a utility spec
// with chosen coefficients, a factorial design, and a choice panel simulated
// from those coefficients. Tests use it to check that the pipeline recovers
// what was planted.
package testkit

import (
	"fmt"
	"math"
	"math/rand"

	"flexwta/domain/choice"
	"flexwta/domain/design"
	"flexwta/domain/model"
)

// SyntheticStudyConfig configures the known-truth study generator
type SyntheticStudyConfig struct {
	Spec                   model.UtilitySpec      `json:"spec"`
	Theta                  []float64              `json:"theta"`
	Levels                 map[string][]float64   `json:"levels"`
	DiagVariance           float64                `json:"diag_variance"`
	Respondents            int                    `json:"respondents"`
	ScenariosPerRespondent int                    `json:"scenarios_per_respondent"`
	Seed                   int64                  `json:"seed"`
	Covariates             []choice.CovariateSpec `json:"covariates"`
}

// DefaultSyntheticConfig returns a small fixed-coefficient study: a contract
// constant of 1.0 and a cost coefficient of -0.5, so the implied
// willingness-to-accept for the constant is exactly 2.
func DefaultSyntheticConfig() SyntheticStudyConfig {
	return SyntheticStudyConfig{
		Spec: model.UtilitySpec{
			Experiment: model.ExperimentEV,
			Attributes: []model.Attribute{
				{Name: "asc_contract", Random: false},
				{Name: "cost", Random: false},
			},
			CostAttribute: "cost",
		},
		Theta: []float64{1.0, -0.5},
		Levels: map[string][]float64{
			"asc_contract": {1},
			"cost":         {0, 1, 2, 4},
		},
		DiagVariance:           0.01,
		Respondents:            200,
		ScenariosPerRespondent: 8,
		Seed:                   42,
		Covariates: []choice.CovariateSpec{
			{Name: "income_keur", Kind: choice.CovariateNumeric},
			{Name: "has_solar", Kind: choice.CovariateBinary},
		},
	}
}

// SyntheticStudy is one generated study: everything a pipeline run consumes
type SyntheticStudy struct {
	Spec       model.UtilitySpec
	Estimate   model.PointEstimate
	Design     *design.Table
	Panel      *choice.Panel
	Covariates *choice.CovariateTable
}

// StudyDataGenerator simulates choice data from known coefficients
type StudyDataGenerator struct {
	config SyntheticStudyConfig
	rng    *rand.Rand
}

// NewStudyDataGenerator creates a new study data generator
func NewStudyDataGenerator(config SyntheticStudyConfig) *StudyDataGenerator {
	return &StudyDataGenerator{
		config: config,
		rng:    rand.New(rand.NewSource(config.Seed)),
	}
}

// Generate produces the full synthetic study
func (g *StudyDataGenerator) Generate() (*SyntheticStudy, error) {
	cfg := g.config
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Theta) != cfg.Spec.ParamCount() {
		return nil, fmt.Errorf("theta has %d values, spec wants %d", len(cfg.Theta), cfg.Spec.ParamCount())
	}
	if cfg.Respondents <= 0 || cfg.ScenariosPerRespondent <= 0 {
		return nil, fmt.Errorf("respondents and scenarios per respondent must be positive")
	}
	if cfg.DiagVariance <= 0 {
		return nil, fmt.Errorf("diagonal variance must be positive")
	}

	table, err := design.Expand(cfg.Spec.Experiment, cfg.Spec.AttributeNames(), cfg.Levels)
	if err != nil {
		return nil, err
	}

	estimate := g.buildEstimate()
	panel, err := g.simulatePanel(table)
	if err != nil {
		return nil, err
	}
	covariates, err := g.drawCovariates()
	if err != nil {
		return nil, err
	}

	if err := table.ValidateAgainst(cfg.Spec); err != nil {
		return nil, err
	}
	if err := panel.ValidateAgainst(cfg.Spec); err != nil {
		return nil, err
	}

	return &SyntheticStudy{
		Spec:       cfg.Spec,
		Estimate:   estimate,
		Design:     table,
		Panel:      panel,
		Covariates: covariates,
	}, nil
}

func (g *StudyDataGenerator) buildEstimate() model.PointEstimate {
	k := len(g.config.Theta)
	coefs := make([]float64, k)
	copy(coefs, g.config.Theta)

	cov := make([][]float64, k)
	for i := range cov {
		cov[i] = make([]float64, k)
		cov[i][i] = g.config.DiagVariance
	}

	return model.PointEstimate{
		Experiment: g.config.Spec.Experiment,
		ParamNames: g.config.Spec.ParamNames(),
		Coefs:      coefs,
		Cov:        cov,
	}
}

// simulatePanel walks respondents over the design round-robin and accepts
// each contract with probability logistic(V) against the opt-out at zero.
func (g *StudyDataGenerator) simulatePanel(table *design.Table) (*choice.Panel, error) {
	cfg := g.config
	scenarios := table.Scenarios()
	var observations []choice.Observation

	for r := 0; r < cfg.Respondents; r++ {
		respondentID := fmt.Sprintf("resp_%04d", r+1)
		beta := g.respondentCoefs()

		for t := 0; t < cfg.ScenariosPerRespondent; t++ {
			sc := scenarios[(r*cfg.ScenariosPerRespondent+t)%len(scenarios)]

			v := 0.0
			for name, x := range sc.Contract.Values {
				v += beta[name] * x
			}
			accept := g.rng.Float64() < logistic(v)

			attrs := make(map[string]float64, len(sc.Contract.Values))
			for name, x := range sc.Contract.Values {
				attrs[name] = x
			}
			observations = append(observations, choice.Observation{
				RespondentID:  respondentID,
				ScenarioID:    sc.ID,
				Attributes:    attrs,
				ChoseContract: accept,
			})
		}
	}

	return choice.NewPanel(cfg.Spec.Experiment, observations)
}

// respondentCoefs realizes one respondent's coefficient vector: fixed
// coefficients as-is, random ones drawn as means + L*z.
func (g *StudyDataGenerator) respondentCoefs() map[string]float64 {
	spec := g.config.Spec
	theta := g.config.Theta
	beta := make(map[string]float64, len(spec.Attributes))

	random := spec.RandomAttributes()
	m := len(random)
	z := make([]float64, m)
	for i := range z {
		z[i] = g.rng.NormFloat64()
	}

	fixedIdx := 0
	for _, a := range spec.Attributes {
		if !a.Random {
			beta[a.Name] = theta[fixedIdx]
			fixedIdx++
		}
	}
	meansOff, cholOff := spec.MeansOffset(), spec.CholOffset()
	for i, a := range random {
		v := theta[meansOff+i]
		for j := 0; j <= i; j++ {
			v += theta[cholOff+i*(i+1)/2+j] * z[j]
		}
		beta[a.Name] = v
	}
	return beta
}

func (g *StudyDataGenerator) drawCovariates() (*choice.CovariateTable, error) {
	if len(g.config.Covariates) == 0 {
		return nil, nil
	}
	rows := make(map[string]map[string]float64, g.config.Respondents)
	for r := 0; r < g.config.Respondents; r++ {
		respondentID := fmt.Sprintf("resp_%04d", r+1)
		values := make(map[string]float64, len(g.config.Covariates))
		for _, c := range g.config.Covariates {
			switch c.Kind {
			case choice.CovariateBinary:
				values[c.Name] = float64(g.rng.Intn(2))
			default:
				values[c.Name] = 30 + g.rng.Float64()*40
			}
		}
		rows[respondentID] = values
	}
	return choice.NewCovariateTable(g.config.Covariates, rows)
}

func logistic(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
