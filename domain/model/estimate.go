package model

import (
	"fmt"
	"math"

	"flexwta/domain/core"
)

// PointEstimate is the estimated coefficient vector and its covariance for
// one experiment, as produced by the external mixed logit estimator. It is
// read once at startup and never modified.
//
// Coefs follows the flattened layout of the matching UtilitySpec; ParamNames
// carries the estimator's own naming so mismatches surface as errors instead
// of silently misaligned coefficients.
type PointEstimate struct {
	Experiment Experiment  `json:"experiment"`
	ParamNames []string    `json:"param_names"`
	Coefs      []float64   `json:"coefs"`
	Cov        [][]float64 `json:"cov"`
}

// K returns the parameter count
func (p PointEstimate) K() int { return len(p.Coefs) }

// Validate checks internal consistency: matching lengths, a square symmetric
// covariance, and finite values throughout.
func (p PointEstimate) Validate() error {
	if !p.Experiment.Valid() {
		return core.NewValidationError("point_estimate", fmt.Sprintf("invalid experiment %q", p.Experiment))
	}
	k := len(p.Coefs)
	if k == 0 {
		return core.NewValidationError("point_estimate", "coefficient vector cannot be empty")
	}
	if len(p.ParamNames) != k {
		return core.NewValidationError("point_estimate",
			fmt.Sprintf("param_names length %d does not match %d coefficients", len(p.ParamNames), k))
	}
	if len(p.Cov) != k {
		return core.NewValidationError("point_estimate",
			fmt.Sprintf("covariance has %d rows, want %d", len(p.Cov), k))
	}
	for i, row := range p.Cov {
		if len(row) != k {
			return core.NewValidationError("point_estimate",
				fmt.Sprintf("covariance row %d has %d columns, want %d", i, len(row), k))
		}
	}
	for i, c := range p.Coefs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: coefficient %d", core.ErrNonFinite, i)
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			v := p.Cov[i][j]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: covariance element (%d,%d)", core.ErrNonFinite, i, j)
			}
			// Symmetry within floating point noise of the source file
			if d := math.Abs(v - p.Cov[j][i]); d > 1e-9*(1+math.Abs(v)) {
				return core.NewValidationError("point_estimate",
					fmt.Sprintf("covariance not symmetric at (%d,%d): %g vs %g", i, j, v, p.Cov[j][i]))
			}
		}
	}
	return nil
}

// MatchesSpec verifies that the estimate's parameter naming agrees with the
// layout implied by the utility spec. Run once at startup; a mismatch here is
// fatal for the whole run, not a per-replicate failure.
func (p PointEstimate) MatchesSpec(spec UtilitySpec) error {
	if p.Experiment != spec.Experiment {
		return core.NewSpecMismatchError("experiment", spec.Experiment, p.Experiment)
	}
	want := spec.ParamNames()
	if len(p.ParamNames) != len(want) {
		return core.NewSpecMismatchError("parameter count", len(want), len(p.ParamNames))
	}
	for i, name := range want {
		if p.ParamNames[i] != name {
			return core.NewSpecMismatchError(fmt.Sprintf("parameter %d", i), name, p.ParamNames[i])
		}
	}
	return nil
}
