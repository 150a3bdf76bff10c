package model

import (
	"fmt"
	"math"

	"flexwta/domain/core"
)

// ValidatedReplicate is the replicate index reserved for the artifact frozen
// from the point estimate itself, as opposed to a perturbed draw.
const ValidatedReplicate = 0

// Artifact is a frozen, self-contained parameterization of the mixed logit
// model: everything a downstream stage needs to simulate probabilities or
// derive conditional coefficients, with no reference back to the estimator.
//
// Freezing performs no re-estimation. It validates a coefficient vector
// against the spec layout and packages it; artifacts are never mutated after
// construction, so concurrent consumers load their own copy and share nothing.
type Artifact struct {
	Experiment Experiment     `json:"experiment"`
	Replicate  int            `json:"replicate"`
	Spec       UtilitySpec    `json:"spec"`
	Theta      []float64      `json:"theta"`
	SpecHash   core.Hash      `json:"spec_hash"`
	CreatedAt  core.Timestamp `json:"created_at"`
}

// Freeze validates theta against the spec layout and packages it as an
// artifact for the given replicate index (0 = validated point estimate).
func Freeze(spec UtilitySpec, replicate int, theta []float64) (*Artifact, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if replicate < 0 {
		return nil, core.NewValidationError("artifact", fmt.Sprintf("replicate index %d cannot be negative", replicate))
	}
	if len(theta) != spec.ParamCount() {
		return nil, core.NewSpecMismatchError("theta length", spec.ParamCount(), len(theta))
	}
	for i, v := range theta {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: theta[%d] in replicate %d", core.ErrNonFinite, i, replicate)
		}
	}
	own := make([]float64, len(theta))
	copy(own, theta)
	return &Artifact{
		Experiment: spec.Experiment,
		Replicate:  replicate,
		Spec:       spec,
		Theta:      own,
		SpecHash:   spec.Hash(),
		CreatedAt:  core.Now(),
	}, nil
}

// Validate re-checks integrity after a round trip through storage
func (a *Artifact) Validate() error {
	if err := a.Spec.Validate(); err != nil {
		return err
	}
	if a.Replicate < 0 {
		return core.NewValidationError("artifact", "replicate index cannot be negative")
	}
	if len(a.Theta) != a.Spec.ParamCount() {
		return core.NewSpecMismatchError("theta length", a.Spec.ParamCount(), len(a.Theta))
	}
	if !a.SpecHash.IsEmpty() && !a.SpecHash.Equals(a.Spec.Hash()) {
		return fmt.Errorf("%w: artifact spec hash changed since freeze", core.ErrHashMismatch)
	}
	return nil
}

// IsValidated reports whether this is the point-estimate artifact
func (a *Artifact) IsValidated() bool { return a.Replicate == ValidatedReplicate }

// FixedCoef returns the coefficient of a fixed attribute
func (a *Artifact) FixedCoef(name string) (float64, error) {
	idx := a.Spec.FixedIndex(name)
	if idx < 0 {
		return 0, core.NewSpecMismatchError("fixed attribute", name, "absent")
	}
	return a.Theta[idx], nil
}

// Means returns a copy of the random-coefficient means in spec order
func (a *Artifact) Means() []float64 {
	m := a.Spec.NumRandom()
	out := make([]float64, m)
	copy(out, a.Theta[a.Spec.MeansOffset():a.Spec.MeansOffset()+m])
	return out
}

// CholLower unpacks the row-major lower-triangular Cholesky factor of the
// random-coefficient covariance into a dense m x m matrix (upper half zero).
func (a *Artifact) CholLower() [][]float64 {
	m := a.Spec.NumRandom()
	out := make([][]float64, m)
	pos := a.Spec.CholOffset()
	for i := 0; i < m; i++ {
		out[i] = make([]float64, m)
		for j := 0; j <= i; j++ {
			out[i][j] = a.Theta[pos]
			pos++
		}
	}
	return out
}

// Key returns the storage key pair as a human-readable string
func (a *Artifact) Key() string {
	return fmt.Sprintf("%s/replicate_%04d", a.Experiment, a.Replicate)
}
