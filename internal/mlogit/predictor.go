package mlogit

import (
	"fmt"

	"flexwta/domain/core"
	"flexwta/domain/design"
	"flexwta/domain/model"
)

// Predictor computes simulated acceptance probabilities for TIOLI scenarios
// under a frozen artifact. The opt-out alternative carries zero utility, so
// the acceptance probability of a scenario is the simulated expectation of
// the logistic of the contract utility.
type Predictor struct {
	innerDraws int
	burnIn     int
}

// NewPredictor configures the simulation depth shared by every Predict call.
func NewPredictor(innerDraws, burnIn int) (*Predictor, error) {
	if innerDraws <= 0 {
		return nil, fmt.Errorf("%w: inner draws must be positive, got %d", core.ErrInvalidArgument, innerDraws)
	}
	if burnIn < 0 {
		return nil, fmt.Errorf("%w: burn-in must be non-negative, got %d", core.ErrInvalidArgument, burnIn)
	}
	return &Predictor{innerDraws: innerDraws, burnIn: burnIn}, nil
}

// Predict returns the acceptance probability of every scenario in the table,
// in scenario order. Deterministic for a fixed (artifact, table, innerDraws,
// burnIn): the draw set is a fixed Halton prefix, not a random stream.
func (p *Predictor) Predict(art *model.Artifact, table *design.Table) ([]float64, error) {
	if art == nil || table == nil {
		return nil, fmt.Errorf("%w: predictor requires artifact and design table", core.ErrInvalidArgument)
	}
	if art.Experiment != table.Experiment {
		return nil, core.NewSpecMismatchError("design experiment", art.Experiment, table.Experiment)
	}
	if err := table.ValidateAgainst(art.Spec); err != nil {
		return nil, err
	}

	betas, err := simulationDraws(art, p.innerDraws, p.burnIn)
	if err != nil {
		return nil, err
	}

	scenarios := table.Scenarios()
	probs := make([]float64, len(scenarios))
	for i, sc := range scenarios {
		probs[i] = p.accept(art, betas, sc.Contract.Values)
	}
	return probs, nil
}

// APERequest names a counterfactual move of one design attribute, evaluated
// with everything else held at its design value.
type APERequest struct {
	Attribute string
	From      float64
	To        float64
}

// AveragePartialEffect returns the mean change in acceptance probability
// across the table's scenarios when the requested attribute moves From->To.
func (p *Predictor) AveragePartialEffect(art *model.Artifact, table *design.Table, req APERequest) (float64, error) {
	if art == nil || table == nil {
		return 0, fmt.Errorf("%w: predictor requires artifact and design table", core.ErrInvalidArgument)
	}
	if !art.Spec.HasAttribute(req.Attribute) {
		return 0, core.NewSpecMismatchError("ape attribute", art.Spec.AttributeNames(), req.Attribute)
	}
	if err := table.ValidateAgainst(art.Spec); err != nil {
		return 0, err
	}

	betas, err := simulationDraws(art, p.innerDraws, p.burnIn)
	if err != nil {
		return 0, err
	}

	scenarios := table.Scenarios()
	if len(scenarios) == 0 {
		return 0, fmt.Errorf("%w: design table has no scenarios", core.ErrInvalidArgument)
	}

	var total float64
	for _, sc := range scenarios {
		from := p.accept(art, betas, overrideValue(sc.Contract.Values, req.Attribute, req.From))
		to := p.accept(art, betas, overrideValue(sc.Contract.Values, req.Attribute, req.To))
		total += to - from
	}
	return total / float64(len(scenarios)), nil
}

// accept simulates one scenario's acceptance probability over the draw set.
func (p *Predictor) accept(art *model.Artifact, betas [][]float64, values map[string]float64) float64 {
	fixed, random := utilityTerms(art.Spec, art.Theta, values)
	var sum float64
	for _, beta := range betas {
		sum += stableLogistic(fixed + dot(beta, random))
	}
	return sum / float64(len(betas))
}

// overrideValue copies an attribute-value map with one entry replaced.
func overrideValue(values map[string]float64, name string, v float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for k, val := range values {
		out[k] = val
	}
	out[name] = v
	return out
}
