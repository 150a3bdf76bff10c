package mlogit

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"flexwta/domain/choice"
	"flexwta/domain/core"
	"flexwta/domain/model"
)

// degenerateCostEps is the cost-coefficient magnitude below which a WTA
// ratio is flagged degenerate instead of being reported as a huge or
// non-finite number.
const degenerateCostEps = 1e-8

// ConditionalResult holds one respondent's posterior-mean coefficients under
// a frozen artifact: fixed coefficients pass through unchanged, random
// coefficients are the likelihood-weighted average over the simulation
// draws, conditioned on the respondent's observed choices.
type ConditionalResult struct {
	RespondentID  string
	Coefficients  map[string]float64
	LogLikelihood float64
}

// WTAObservation is one respondent's willingness-to-accept ratio for a
// single contract attribute, expressed in compensation units.
type WTAObservation struct {
	RespondentID string
	Attribute    string
	Value        float64
	Degenerate   bool
}

// Deriver computes conditional coefficients over a choice panel. It shares
// the Halton draw set with the Predictor so both stages see the same frozen
// mixing distribution.
type Deriver struct {
	innerDraws int
	burnIn     int
}

// NewDeriver configures the simulation depth shared by every Derive call.
func NewDeriver(innerDraws, burnIn int) (*Deriver, error) {
	if innerDraws <= 0 {
		return nil, fmt.Errorf("%w: inner draws must be positive, got %d", core.ErrInvalidArgument, innerDraws)
	}
	if burnIn < 0 {
		return nil, fmt.Errorf("%w: burn-in must be non-negative, got %d", core.ErrInvalidArgument, burnIn)
	}
	return &Deriver{innerDraws: innerDraws, burnIn: burnIn}, nil
}

// Derive returns one ConditionalResult per respondent, in panel order.
// Likelihood weights are normalized in log space, so long panels with tiny
// per-draw likelihoods never underflow to all-zero weights.
func (d *Deriver) Derive(art *model.Artifact, panel *choice.Panel) ([]ConditionalResult, error) {
	if art == nil || panel == nil {
		return nil, fmt.Errorf("%w: deriver requires artifact and panel", core.ErrInvalidArgument)
	}
	if art.Experiment != panel.Experiment {
		return nil, core.NewSpecMismatchError("panel experiment", art.Experiment, panel.Experiment)
	}
	if err := panel.ValidateAgainst(art.Spec); err != nil {
		return nil, err
	}

	betas, err := simulationDraws(art, d.innerDraws, d.burnIn)
	if err != nil {
		return nil, err
	}

	spec := art.Spec
	numDraws := len(betas)
	results := make([]ConditionalResult, 0, panel.NumRespondents())

	for _, block := range panel.Respondents() {
		// Draw-invariant pieces of each observation's utility.
		fixedDots := make([]float64, len(block.Observations))
		randoms := make([][]float64, len(block.Observations))
		signs := make([]float64, len(block.Observations))
		for t, obs := range block.Observations {
			fixedDots[t], randoms[t] = utilityTerms(spec, art.Theta, obs.Attributes)
			if obs.ChoseContract {
				signs[t] = 1
			} else {
				signs[t] = -1
			}
		}

		ll := make([]float64, numDraws)
		for s, beta := range betas {
			var sum float64
			for t := range block.Observations {
				sum += logSigmoid(signs[t] * (fixedDots[t] + dot(beta, randoms[t])))
			}
			ll[s] = sum
		}

		lse := logSumExp(ll)
		conditional := make([]float64, spec.NumRandom())
		for s, beta := range betas {
			w := math.Exp(ll[s] - lse)
			for i := range conditional {
				conditional[i] += w * beta[i]
			}
		}

		coefs := make(map[string]float64, len(spec.Attributes))
		f, m := 0, 0
		for _, attr := range spec.Attributes {
			if attr.Random {
				coefs[attr.Name] = conditional[m]
				m++
			} else {
				coefs[attr.Name] = art.Theta[f]
				f++
			}
		}

		results = append(results, ConditionalResult{
			RespondentID:  block.RespondentID,
			Coefficients:  coefs,
			LogLikelihood: lse - math.Log(float64(numDraws)),
		})
	}

	return results, nil
}

// DeriveWTA converts conditional coefficients into willingness-to-accept
// ratios -beta_attr/beta_cost for the named attributes. A near-zero cost
// coefficient flags the observation degenerate; the value is zeroed and the
// caller excludes it from downstream regressions.
func DeriveWTA(spec model.UtilitySpec, conditionals []ConditionalResult, attributes []string) ([]WTAObservation, error) {
	for _, attr := range attributes {
		if attr == spec.CostAttribute {
			return nil, fmt.Errorf("%w: wta attribute %q is the cost attribute", core.ErrInvalidArgument, attr)
		}
		if !spec.HasAttribute(attr) {
			return nil, core.NewSpecMismatchError("wta attribute", spec.AttributeNames(), attr)
		}
	}

	out := make([]WTAObservation, 0, len(conditionals)*len(attributes))
	for _, cond := range conditionals {
		cost, ok := cond.Coefficients[spec.CostAttribute]
		if !ok {
			return nil, core.NewSpecMismatchError("cost coefficient", spec.CostAttribute, "missing")
		}
		for _, attr := range attributes {
			obs := WTAObservation{RespondentID: cond.RespondentID, Attribute: attr}
			if math.Abs(cost) < degenerateCostEps {
				obs.Degenerate = true
			} else {
				obs.Value = -cond.Coefficients[attr] / cost
			}
			out = append(out, obs)
		}
	}
	return out, nil
}

// MomentRatio compares the cross-respondent mean of each random attribute's
// conditional coefficient with its unconditional (frozen) mean. On a panel
// consistent with the frozen model the ratios sit near 1; drifting ratios
// mean the conditioning step and the frozen distribution disagree.
// Attributes whose unconditional mean is numerically zero are omitted.
func MomentRatio(art *model.Artifact, conditionals []ConditionalResult) (map[string]float64, error) {
	if art == nil {
		return nil, fmt.Errorf("%w: moment ratio requires an artifact", core.ErrInvalidArgument)
	}
	if len(conditionals) == 0 {
		return nil, fmt.Errorf("%w: moment ratio requires at least one respondent", core.ErrInvalidArgument)
	}

	means := art.Means()
	ratios := make(map[string]float64)
	for i, attr := range art.Spec.RandomAttributes() {
		if math.Abs(means[i]) < 1e-12 {
			continue
		}
		values := make([]float64, 0, len(conditionals))
		for _, cond := range conditionals {
			values = append(values, cond.Coefficients[attr.Name])
		}
		condMean, err := stats.Mean(values)
		if err != nil {
			return nil, core.NewNumericalError("conditional mean", err)
		}
		ratios[attr.Name] = condMean / means[i]
	}
	return ratios, nil
}
